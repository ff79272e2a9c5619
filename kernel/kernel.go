// Package kernel defines the field-kernel contract consumed by the
// visualization pipeline, plus the default cyclic-voltammetry kernels.
//
// A kernel is a pure, deterministic function of a point in the
// mathematical domain and the tunable parameters; it shares no state
// across texels. Any Func can be substituted without changing the
// pipeline.
package kernel

// Params carries the tunable scalars a kernel may consume. The pipeline
// fills it from the host parameter record; kernels are free to ignore
// fields they have no use for.
type Params struct {
	// IterationLimit caps series depth or wave count.
	IterationLimit uint32

	// SampleCount scales sampling density or amplitude.
	SampleCount uint32

	// StepSize is the integration or sweep step.
	StepSize float64

	// Coupling is the kernel's free scalar parameter.
	Coupling float64
}

// Func evaluates the field at a point (x, y) of the mathematical
// domain. The returned value is raw: the pipeline recalibrates it into
// the display range afterwards, so kernels need not normalize.
type Func func(x, y float64, p Params) float64
