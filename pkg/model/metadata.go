package model

import (
	"sort"

	"github.com/m-mizutani/goerr/v2"
)

// Metadata holds key-value tags attached to a Memory. Values are restricted
// to a closed set of primitive types: string, int, int64, float64 and bool.
type Metadata map[string]any

// Validate checks keys and the value type set. Called at insert time.
func (m Metadata) Validate() error {
	for key, value := range m {
		if key == "" {
			return goerr.New("metadata key is empty", goerr.T(ErrTagInput))
		}
		switch value.(type) {
		case string, int, int64, float64, bool:
			// ok
		default:
			return goerr.New("unsupported metadata value type",
				goerr.T(ErrTagInput),
				goerr.V("key", key),
				goerr.V("value", value))
		}
	}
	return nil
}

// Clone returns a shallow copy. Values are primitives so a shallow copy is a
// full copy. A nil map clones to nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Keys returns metadata keys in sorted order for deterministic display.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
