//go:build !js_eval

package hier

// NewJSFilter is unavailable without the js_eval build tag.
func NewJSFilter(opts ...JSFilterOption) FilterEvaluator {
	_ = applyJSFilterOptions(opts)
	return nil
}

func jsFilterAvailable() bool {
	return false
}
