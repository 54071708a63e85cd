//go:build !js_eval

package strata

// NewJSEvaluator returns nil unless the binary is built with the js_eval
// tag; NewEvaluator reports that as an error.
func NewJSEvaluator(...EngineOption) Evaluator {
	return nil
}
