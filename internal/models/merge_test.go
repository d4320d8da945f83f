package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeepMergeJSON_EmptyPatchIsIdentity(t *testing.T) {
	base := map[string]interface{}{"a": 1, "b": map[string]interface{}{"c": 2}}

	merged := DeepMergeJSON(base, map[string]interface{}{})

	assert.Equal(t, base, merged)
}

func TestDeepMergeJSON_ObjectsMergeKeyWise(t *testing.T) {
	base := map[string]interface{}{
		"retry_count": 1,
		"errors":      []interface{}{"first"},
		"nested":      map[string]interface{}{"x": 1, "y": 2},
	}
	patch := map[string]interface{}{
		"nested": map[string]interface{}{"y": 3, "z": 4},
	}

	merged := DeepMergeJSON(base, patch)

	assert.Equal(t, 1, merged["retry_count"])
	assert.Equal(t, map[string]interface{}{"x": 1, "y": 3, "z": 4}, merged["nested"])
}

func TestDeepMergeJSON_ArraysAndScalarsOverwriteWholesale(t *testing.T) {
	base := map[string]interface{}{
		"errors": []interface{}{"a", "b"},
		"count":  1,
	}
	patch := map[string]interface{}{
		"errors": []interface{}{"c"},
		"count":  2,
	}

	merged := DeepMergeJSON(base, patch)

	assert.Equal(t, []interface{}{"c"}, merged["errors"])
	assert.Equal(t, 2, merged["count"])
}

func TestDeepMergeJSON_IdenticalPatchIsIdempotent(t *testing.T) {
	base := map[string]interface{}{"a": map[string]interface{}{"b": 1}}
	patch := map[string]interface{}{"a": map[string]interface{}{"c": 2}}

	once := DeepMergeJSON(base, patch)
	twice := DeepMergeJSON(once, patch)

	assert.Equal(t, once, twice)
}

func TestDeepMergeJSON_DoesNotMutateBase(t *testing.T) {
	base := map[string]interface{}{"a": 1}
	_ = DeepMergeJSON(base, map[string]interface{}{"a": 2})

	assert.Equal(t, 1, base["a"])
}
