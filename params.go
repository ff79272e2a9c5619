package fieldviz

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrRangeCollapse is returned when a viewport update would shrink a
// range width below MaxZoomDelta.
var ErrRangeCollapse = errors.New("fieldviz: range width below minimum zoom delta")

// ErrInvalidParameters is returned when a FieldParameters record fails
// validation.
var ErrInvalidParameters = errors.New("fieldviz: invalid field parameters")

// DisplayMax is the top of the display value range the normalization
// pipeline maps into. Recalibrated and equalized texel values lie in
// [0, DisplayMax].
const DisplayMax = 255.0

// FieldParameters describes one evaluation of the field kernel over the
// visible viewport. The record is owned by the host and pushed to the
// GPU as a uniform block when marked dirty; it is never read back.
type FieldParameters struct {
	// IterationLimit caps the per-texel iteration or series depth of
	// the field kernel.
	IterationLimit uint32

	// SampleCount is the number of samples or particles the kernel
	// integrates per texel.
	SampleCount uint32

	// StepSize is the kernel's integration step.
	StepSize float32

	// CouplingConstant is the kernel's free scalar parameter.
	CouplingConstant float32

	// XRange and YRange define the visible mathematical domain mapped
	// onto the canvas.
	XRange Range
	YRange Range
}

// DefaultParameters returns the parameter record the visualizer starts
// with: a 100-iteration, 20000-sample field over x [-2, 0.5], y [-1.25, 1.25].
func DefaultParameters() FieldParameters {
	return FieldParameters{
		IterationLimit:   100,
		SampleCount:      20000,
		StepSize:         0.1,
		CouplingConstant: 4.5,
		XRange:           Range{-2.0, 0.5},
		YRange:           Range{-1.25, 1.25},
	}
}

// Validate reports whether the record satisfies the range invariants:
// both ranges must be ascending and at least MaxZoomDelta wide.
func (p FieldParameters) Validate() error {
	if w := p.XRange.Width(); w < MaxZoomDelta {
		return fmt.Errorf("%w: x width %g", ErrInvalidParameters, w)
	}
	if w := p.YRange.Width(); w < MaxZoomDelta {
		return fmt.Errorf("%w: y width %g", ErrInvalidParameters, w)
	}
	return nil
}

// SetRanges replaces both viewport ranges. Updates that would collapse
// either range below MaxZoomDelta are rejected and the prior ranges are
// retained.
func (p *FieldParameters) SetRanges(x, y Range) error {
	if x.Width() < MaxZoomDelta || y.Width() < MaxZoomDelta {
		return ErrRangeCollapse
	}
	p.XRange = x
	p.YRange = y
	return nil
}

// ParamsByteSize is the size of the serialized uniform block.
const ParamsByteSize = 32

// Bytes serializes the record to little-endian bytes. The layout matches
// the WGSL FieldParams struct: two u32, two f32, then two vec2<f32>.
func (p FieldParameters) Bytes() []byte {
	buf := make([]byte, ParamsByteSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], p.IterationLimit)
	le.PutUint32(buf[4:8], p.SampleCount)
	le.PutUint32(buf[8:12], math.Float32bits(p.StepSize))
	le.PutUint32(buf[12:16], math.Float32bits(p.CouplingConstant))
	le.PutUint32(buf[16:20], math.Float32bits(float32(p.XRange.Min)))
	le.PutUint32(buf[20:24], math.Float32bits(float32(p.XRange.Max)))
	le.PutUint32(buf[24:28], math.Float32bits(float32(p.YRange.Min)))
	le.PutUint32(buf[28:32], math.Float32bits(float32(p.YRange.Max)))
	return buf
}
