package model_test

import (
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/model"
)

func TestMetadataValidate(t *testing.T) {
	meta := model.Metadata{
		"tags":   "work,notes",
		"count":  3,
		"score":  0.5,
		"pinned": true,
	}
	gt.NoError(t, meta.Validate())
}

func TestMetadataValidateRejectsCompositeValues(t *testing.T) {
	testCases := map[string]model.Metadata{
		"slice":     {"tags": []string{"a", "b"}},
		"map":       {"nested": map[string]string{"a": "b"}},
		"nil":       {"value": nil},
		"empty key": {"": "value"},
	}

	for name, meta := range testCases {
		t.Run(name, func(t *testing.T) {
			err := meta.Validate()
			gt.Error(t, err)
			gt.True(t, goerr.HasTag(err, model.ErrTagInput))
		})
	}
}

func TestMetadataClone(t *testing.T) {
	meta := model.Metadata{"tags": "a"}
	cloned := meta.Clone()
	cloned["tags"] = "b"
	gt.Equal(t, meta["tags"], "a")
}

func TestMetadataKeysSorted(t *testing.T) {
	meta := model.Metadata{"z": "1", "a": "2", "m": "3"}
	gt.Equal(t, meta.Keys(), []string{"a", "m", "z"})
}
