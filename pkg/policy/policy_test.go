package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/policy"
)

const testPolicy = `package memory

default store := {"allow": true}

store := {"allow": false, "reason": "secrets are not stored"} if {
	contains(input.text, "password")
}

store := {"allow": true, "tags": {"source": "policy", "reviewed": true}} if {
	input.metadata.tags == "work"
}
`

func TestNilPolicyAllowsEverything(t *testing.T) {
	var p *policy.StorePolicy

	decision := gt.R1(p.Evaluate(context.Background(), "anything", nil)).NoError(t)
	gt.True(t, decision.Allow)
}

func TestLoadEmptyPathReturnsNil(t *testing.T) {
	p := gt.R1(policy.Load(context.Background(), "")).NoError(t)
	gt.Nil(t, p)
}

func TestPolicyDeny(t *testing.T) {
	ctx := context.Background()
	p := policy.MustCompile(ctx, testPolicy)

	decision := gt.R1(p.Evaluate(ctx, "my password is hunter2", nil)).NoError(t)
	gt.False(t, decision.Allow)
	gt.S(t, decision.Reason).Contains("secrets")
}

func TestPolicyAllowWithTags(t *testing.T) {
	ctx := context.Background()
	p := policy.MustCompile(ctx, testPolicy)

	decision := gt.R1(p.Evaluate(ctx, "meeting notes", model.Metadata{"tags": "work"})).NoError(t)
	gt.True(t, decision.Allow)
	gt.Equal(t, decision.Tags["source"], "policy")
	gt.Equal(t, decision.Tags["reviewed"], true)
}

func TestPolicyDefaultAllow(t *testing.T) {
	ctx := context.Background()
	p := policy.MustCompile(ctx, testPolicy)

	decision := gt.R1(p.Evaluate(ctx, "an ordinary note", nil)).NoError(t)
	gt.True(t, decision.Allow)
}

func TestLoadFromFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.rego")
	gt.NoError(t, os.WriteFile(path, []byte(testPolicy), 0600))

	p := gt.R1(policy.Load(ctx, path)).NoError(t)
	gt.V(t, p).NotNil()

	decision := gt.R1(p.Evaluate(ctx, "contains password here", nil)).NoError(t)
	gt.False(t, decision.Allow)
}

func TestLoadFromDirectory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "store.rego"), []byte(testPolicy), 0600))

	p := gt.R1(policy.Load(ctx, dir)).NoError(t)
	gt.V(t, p).NotNil()
}
