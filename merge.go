package hier

// MergeData layers override on top of base using deep-merge-with-override:
// mapping values merge recursively with the override winning on conflicts,
// scalar and list values are replaced outright. Neither input is mutated.
// The reserved custom bucket needs no special casing here; being a mapping
// it merges within its own namespace and never collides with named keys.
func MergeData(base, override Data) Data {
	if base == nil && override == nil {
		return nil
	}
	merged := make(Data, len(base)+len(override))
	for key, value := range base {
		merged[key] = cloneAny(value)
	}
	for key, value := range override {
		existing, ok := merged[key]
		if !ok {
			merged[key] = cloneAny(value)
			continue
		}
		merged[key] = mergeAny(existing, value)
	}
	return merged
}

// MergeChain folds layers ordered root (weakest) to leaf (strongest) into a
// single document.
func MergeChain(layers ...Data) Data {
	merged := Data{}
	for _, layer := range layers {
		merged = MergeData(merged, layer)
	}
	return merged
}

// ApplyPatch merges patch into base with patch precedence. Unlike MergeData,
// an explicit nil value in patch deletes the key, which is how callers drop
// settings through a partial update.
func ApplyPatch(base, patch Data) Data {
	merged := cloneData(base)
	if merged == nil {
		merged = Data{}
	}
	for key, value := range patch {
		if value == nil {
			delete(merged, key)
			continue
		}
		existing, ok := merged[key]
		if !ok {
			merged[key] = cloneAny(value)
			continue
		}
		merged[key] = mergeAny(existing, value)
	}
	return merged
}

func mergeAny(base, override any) any {
	baseMap, baseOK := asMap(base)
	overrideMap, overrideOK := asMap(override)
	if baseOK && overrideOK {
		merged := make(map[string]any, len(baseMap)+len(overrideMap))
		for key, value := range baseMap {
			merged[key] = cloneAny(value)
		}
		for key, value := range overrideMap {
			if existing, ok := merged[key]; ok {
				merged[key] = mergeAny(existing, value)
				continue
			}
			merged[key] = cloneAny(value)
		}
		return merged
	}
	return cloneAny(override)
}

func asMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case Data:
		return typed, true
	default:
		return nil, false
	}
}

func cloneData(d Data) Data {
	if d == nil {
		return nil
	}
	clone := make(Data, len(d))
	for key, value := range d {
		clone[key] = cloneAny(value)
	}
	return clone
}

func cloneAny(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		clone := make(map[string]any, len(typed))
		for key, item := range typed {
			clone[key] = cloneAny(item)
		}
		return clone
	case Data:
		clone := make(map[string]any, len(typed))
		for key, item := range typed {
			clone[key] = cloneAny(item)
		}
		return clone
	case []any:
		clone := make([]any, len(typed))
		for i, item := range typed {
			clone[i] = cloneAny(item)
		}
		return clone
	case []string:
		clone := make([]string, len(typed))
		copy(clone, typed)
		return clone
	default:
		return value
	}
}
