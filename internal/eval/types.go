package eval

// #region eval-config
// EvalConfig holds the bounds a computed snapshot is checked against.
type EvalConfig struct {
	TraitCap  float64 // lifetime cumulative base-shift magnitude per trait
	Tolerance float64 // slack for floating-point comparisons
	MaxNorm   float64 // informational: warn when the state L2 norm exceeds this
}

// DefaultEvalConfig returns the defaults matching the engine's calibration.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		TraitCap:  1.0,
		Tolerance: 1e-9,
		MaxNorm:   3.0,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of snapshot validation.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
}

// #endregion eval-result
