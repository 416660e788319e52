package telemetry

// Speedups carries both speedup quantities a result can yield.
//
// Reported is the value the server put in the payload. Derived is computed
// locally from the two lanes' compute times (baseline / accelerated). They
// normally agree; they are kept apart because either may be missing.
type Speedups struct {
	Reported *float64
	Derived  *float64
}

// Effective returns Reported when it is present and non-zero, else Derived.
func (s Speedups) Effective() (float64, bool) {
	if s.Reported != nil && *s.Reported != 0 {
		return *s.Reported, true
	}
	if s.Derived != nil {
		return *s.Derived, true
	}
	return 0, false
}

// SpeedupsOf returns the speedups of a push-channel comparison.
func (c Comparison) SpeedupsOf() Speedups {
	s := Speedups{Reported: c.Speedup}
	if c.GPUResult != nil && c.CPUResult != nil &&
		c.GPUResult.ComputeTime != nil && c.CPUResult.ComputeTime != nil &&
		*c.GPUResult.ComputeTime != 0 {
		s.Derived = Float(*c.CPUResult.ComputeTime / *c.GPUResult.ComputeTime)
	}
	return s
}

// SpeedupsOf returns the speedups of a single-call workload result.
func (r BenchmarkResult) SpeedupsOf() Speedups {
	s := Speedups{Reported: r.Speedup}
	if r.GPUTime != nil && r.CPUTime != nil && *r.GPUTime != 0 {
		s.Derived = Float(*r.CPUTime / *r.GPUTime)
	}
	return s
}
