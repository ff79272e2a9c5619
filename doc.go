// Package fieldviz is an interactive GPU field visualizer.
//
// # Overview
//
// fieldviz evaluates a mathematical field kernel over a user-controlled
// viewport on the GPU, normalizes the result for display (global min/max
// recalibration followed by histogram equalization), renders it full
// screen, and exports PNG snapshots on request.
//
// The package splits into three layers:
//
//   - The root package: pure viewport math ([Range], [Zoom], [Map]),
//     the [FieldParameters] record, and the [State] machine coupling
//     user input to the dirty-flag protocol that drives GPU work.
//   - [github.com/gogpu/fieldviz/fieldcpu]: a CPU implementation of the
//     full six-stage pipeline, used as the nogpu fallback and as the
//     reference the GPU path is validated against.
//   - internal/gpu: the hal-based compute pipeline (field generation,
//     stats reduction, recalibration, histogram, CDF, equalization)
//     plus the full-screen blit and readback paths.
//
// # Quick Start
//
//	v, err := fieldviz.New(512, 512)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer v.Close()
//
//	v.State().ZoomIn()
//	frame, err := v.Frame() // RGBA pixels at the presentation size
//	if err != nil {
//	    log.Fatal(err)
//	}
//	path, err := v.ExportPNG("field")
//
// # Kernels
//
// The field formula is pluggable on the CPU path: any deterministic
// [kernel.Func] of (point, parameters) substitutes without touching the
// pipeline. The default kernel lives in
// [github.com/gogpu/fieldviz/kernel].
//
// # Logging
//
// fieldviz is silent by default. Call [SetLogger] to enable structured
// logging across all sub-packages.
package fieldviz
