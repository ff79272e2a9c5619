//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestPostProcessBlockSize(t *testing.T) {
	// value_min + value_max + histogram_n + histogram[256] +
	// cdf_threshold + cdf_non_zero + cdf[256], all 4-byte words.
	want := (3 + 256 + 2 + 256) * 4
	if ppByteSize != want {
		t.Errorf("ppByteSize = %d, want %d", ppByteSize, want)
	}
}

func TestPPResetBlockLayout(t *testing.T) {
	const threshold = float32(7.5)
	buf := ppResetBlock(threshold)
	if len(buf) != ppByteSize {
		t.Fatalf("reset block length = %d, want %d", len(buf), ppByteSize)
	}

	le := binary.LittleEndian
	if got := le.Uint32(buf[0:4]); got != math.Float32bits(math.MaxFloat32) {
		t.Errorf("value_min bits = %#x, want max-float bits %#x", got, math.Float32bits(math.MaxFloat32))
	}
	if got := le.Uint32(buf[4:8]); got != 0 {
		t.Errorf("value_max bits = %#x, want 0", got)
	}
	if got := le.Uint32(buf[8:12]); got != 0 {
		t.Errorf("histogram_n = %d, want 0", got)
	}
	for i := 0; i < 256; i++ {
		if got := le.Uint32(buf[12+i*4:]); got != 0 {
			t.Fatalf("histogram[%d] = %d, want 0", i, got)
		}
	}
	thrOff := (3 + 256) * 4
	if got := math.Float32frombits(le.Uint32(buf[thrOff:])); got != threshold {
		t.Errorf("cdf_threshold = %v, want %v", got, threshold)
	}
	if got := le.Uint32(buf[thrOff+4:]); got != 0 {
		t.Errorf("cdf_non_zero bits = %#x, want 0", got)
	}
	for i := 0; i < 256; i++ {
		if got := le.Uint32(buf[thrOff+8+i*4:]); got != 0 {
			t.Fatalf("cdf[%d] bits = %#x, want 0", i, got)
		}
	}
}

func TestValueMinInitOrdersBelowAnyField(t *testing.T) {
	// The stats stage compares f32 bit patterns as u32; for
	// non-negative floats the orderings agree, so the reset pattern
	// must sit above every representable field value.
	for _, v := range []float32{0, 1e-30, 1, 255, 1e30} {
		if math.Float32bits(v) >= ppValueMinInit {
			t.Errorf("Float32bits(%v) = %#x not below init %#x", v, math.Float32bits(v), ppValueMinInit)
		}
	}
}

func TestFieldStageOrder(t *testing.T) {
	want := []string{
		"field_generate",
		"stats_reduce",
		"recalibrate",
		"histogram",
		"cdf",
		"equalize",
	}
	if int(stageCount) != len(want) {
		t.Fatalf("stageCount = %d, want %d", stageCount, len(want))
	}
	for i, name := range want {
		if got := fieldStage(i).String(); got != name {
			t.Errorf("stage %d = %q, want %q", i, got, name)
		}
	}
}

func TestWorkgroups(t *testing.T) {
	d := &computeDispatcher{}
	tests := []struct {
		stage  fieldStage
		w, h   uint32
		wx, wy uint32
	}{
		{stageFieldGenerate, 1600, 1200, 100, 75},
		{stageFieldGenerate, 1601, 1201, 101, 76},
		{stageFieldGenerate, 1, 1, 1, 1},
		{stageHistogram, 16, 16, 1, 1},
		// CDF runs its prefix scan in a single invocation.
		{stageCDF, 1600, 1200, 1, 1},
	}
	for _, tt := range tests {
		gx, gy := d.workgroups(tt.stage, tt.w, tt.h)
		if gx != tt.wx || gy != tt.wy {
			t.Errorf("workgroups(%v, %d, %d) = (%d, %d), want (%d, %d)",
				tt.stage, tt.w, tt.h, gx, gy, tt.wx, tt.wy)
		}
	}
}

func TestComputeBindLayoutEntries(t *testing.T) {
	entries := computeBindLayoutEntries()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, e := range entries {
		if e.Binding != uint32(i) {
			t.Errorf("entry %d binding = %d", i, e.Binding)
		}
		if e.Visibility != gputypes.ShaderStageCompute {
			t.Errorf("entry %d visibility = %v, want compute", i, e.Visibility)
		}
	}
	if entries[0].Buffer.Type != gputypes.BufferBindingTypeUniform {
		t.Errorf("config binding type = %v, want uniform", entries[0].Buffer.Type)
	}
	for _, i := range []int{1, 2} {
		if entries[i].Buffer.Type != gputypes.BufferBindingTypeStorage {
			t.Errorf("binding %d type = %v, want storage", i, entries[i].Buffer.Type)
		}
	}
}

func TestBlitBindLayoutEntries(t *testing.T) {
	entries := blitBindLayoutEntries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Buffer.Type != gputypes.BufferBindingTypeUniform {
		t.Errorf("blit config binding type = %v, want uniform", entries[0].Buffer.Type)
	}
	if entries[1].Buffer.Type != gputypes.BufferBindingTypeReadOnlyStorage {
		t.Errorf("canvas binding type = %v, want read-only storage", entries[1].Buffer.Type)
	}
	for i, e := range entries {
		if e.Visibility != gputypes.ShaderStageFragment {
			t.Errorf("entry %d visibility = %v, want fragment", i, e.Visibility)
		}
	}
}
