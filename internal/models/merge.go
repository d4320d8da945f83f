package models

// DeepMergeJSON implements the metadata merge rule from spec.md §4.A and
// §9: object keys merge recursively, arrays and scalars overwrite
// wholesale. It never mutates base; it returns a new map.
func DeepMergeJSON(base, patch map[string]interface{}) map[string]interface{} {
	if base == nil {
		base = map[string]interface{}{}
	}
	merged := make(map[string]interface{}, len(base))
	for k, v := range base {
		merged[k] = v
	}
	for k, pv := range patch {
		bv, exists := merged[k]
		if !exists {
			merged[k] = pv
			continue
		}
		bMap, bIsMap := bv.(map[string]interface{})
		pMap, pIsMap := pv.(map[string]interface{})
		if bIsMap && pIsMap {
			merged[k] = DeepMergeJSON(bMap, pMap)
		} else {
			merged[k] = pv
		}
	}
	return merged
}
