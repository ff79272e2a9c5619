package fieldviz

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestDefaultParameters(t *testing.T) {
	p := DefaultParameters()
	if p.IterationLimit != 100 {
		t.Errorf("IterationLimit = %d, want 100", p.IterationLimit)
	}
	if p.SampleCount != 20000 {
		t.Errorf("SampleCount = %d, want 20000", p.SampleCount)
	}
	if p.StepSize != 0.1 {
		t.Errorf("StepSize = %v, want 0.1", p.StepSize)
	}
	if p.CouplingConstant != 4.5 {
		t.Errorf("CouplingConstant = %v, want 4.5", p.CouplingConstant)
	}
	if p.XRange != (Range{-2.0, 0.5}) {
		t.Errorf("XRange = %v, want {-2 0.5}", p.XRange)
	}
	if p.YRange != (Range{-1.25, 1.25}) {
		t.Errorf("YRange = %v, want {-1.25 1.25}", p.YRange)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestSetRangesRejectsCollapse(t *testing.T) {
	p := DefaultParameters()
	orig := p.XRange

	err := p.SetRanges(Range{0, MaxZoomDelta / 2}, p.YRange)
	if !errors.Is(err, ErrRangeCollapse) {
		t.Fatalf("SetRanges(collapsed) = %v, want ErrRangeCollapse", err)
	}
	if p.XRange != orig {
		t.Errorf("XRange mutated to %v after rejected update, want %v", p.XRange, orig)
	}
}

func TestSetRangesRejectsInverted(t *testing.T) {
	p := DefaultParameters()
	if err := p.SetRanges(Range{1, 0}, p.YRange); !errors.Is(err, ErrRangeCollapse) {
		t.Errorf("SetRanges(inverted) = %v, want ErrRangeCollapse", err)
	}
}

func TestParamsBytesLayout(t *testing.T) {
	p := FieldParameters{
		IterationLimit:   7,
		SampleCount:      42,
		StepSize:         0.25,
		CouplingConstant: 1.5,
		XRange:           Range{-1, 2},
		YRange:           Range{-3, 4},
	}
	buf := p.Bytes()
	if len(buf) != ParamsByteSize {
		t.Fatalf("len(Bytes()) = %d, want %d", len(buf), ParamsByteSize)
	}

	le := binary.LittleEndian
	if got := le.Uint32(buf[0:4]); got != 7 {
		t.Errorf("iterationLimit bytes = %d, want 7", got)
	}
	if got := le.Uint32(buf[4:8]); got != 42 {
		t.Errorf("sampleCount bytes = %d, want 42", got)
	}
	if got := math.Float32frombits(le.Uint32(buf[8:12])); got != 0.25 {
		t.Errorf("stepSize bytes = %v, want 0.25", got)
	}
	if got := math.Float32frombits(le.Uint32(buf[12:16])); got != 1.5 {
		t.Errorf("couplingConstant bytes = %v, want 1.5", got)
	}
	want := []float32{-1, 2, -3, 4}
	for i, w := range want {
		off := 16 + i*4
		if got := math.Float32frombits(le.Uint32(buf[off : off+4])); got != w {
			t.Errorf("range float at offset %d = %v, want %v", off, got, w)
		}
	}
}
