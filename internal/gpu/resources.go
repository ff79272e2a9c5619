//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Buffer layout constants. The byte sizes must match the WGSL structs
// in shaders/ exactly.
const (
	// configByteSize is the Config uniform: canvas_size vec2<u32>,
	// two padding words, then the 32-byte parameter record.
	configByteSize = 48

	// configHeaderSize is the length of the dims+padding prefix that
	// precedes the serialized parameter record.
	configHeaderSize = 16

	// ppByteSize is the PostProcess storage block: value_min,
	// value_max, histogram_n, histogram[256], cdf_threshold,
	// cdf_non_zero, cdf[256].
	ppByteSize = 3*4 + 256*4 + 2*4 + 256*4

	// blitConfigByteSize is the BlitConfig uniform: surface_size and
	// canvas_size, both vec2<u32>.
	blitConfigByteSize = 16

	// texelByteSize is one canvas texel, a vec4<f32>.
	texelByteSize = 16
)

// ppValueMinInit is the reset bit pattern for the atomic minimum: the
// largest finite f32, so any texel value replaces it. The bitcast
// ordering trick the stats shader relies on holds for non-negative
// values only; see stats_reduce.wgsl.
var ppValueMinInit = math.Float32bits(math.MaxFloat32)

// resourceSet is one complete generation of size-dependent resources:
// the canvas buffer and every bind group referencing it. A set is built
// fully before the previous one is retired, so no stage ever observes a
// partially rebuilt binding.
type resourceSet struct {
	width, height uint32
	generation    uint64

	canvas    hal.Buffer
	computeBG hal.BindGroup
	blitBG    hal.BindGroup
}

func (s *resourceSet) destroy(device hal.Device) {
	if s == nil {
		return
	}
	if s.blitBG != nil {
		device.DestroyBindGroup(s.blitBG)
	}
	if s.computeBG != nil {
		device.DestroyBindGroup(s.computeBG)
	}
	if s.canvas != nil {
		device.DestroyBuffer(s.canvas)
	}
}

// ResourceManager owns the GPU-side canvas and the buffers shared by
// all pipeline stages. The canvas is recreated, never resized in place:
// Ensure builds a complete new resource set when the dimensions change
// and retires the old one afterwards.
//
// ResourceManager is confined to the host control thread that sequences
// GPU work; it has no internal locking.
type ResourceManager struct {
	device hal.Device
	queue  hal.Queue

	computeLayout hal.BindGroupLayout
	blitLayout    hal.BindGroupLayout

	// Size-independent buffers, created once.
	configBuf     hal.Buffer // Config uniform, all compute stages
	ppBuf         hal.Buffer // PostProcess storage block
	blitConfigBuf hal.Buffer // BlitConfig uniform
	paramStaging  hal.Buffer // staging for the Config copy
	ppStaging     hal.Buffer // staging for the PostProcess reset copy

	cur        *resourceSet
	generation uint64
}

// NewResourceManager creates the size-independent buffers. The bind
// group layouts come from the compute and blit pipelines; the manager
// keeps them to rebuild bind groups on resize.
func NewResourceManager(device hal.Device, queue hal.Queue, computeLayout, blitLayout hal.BindGroupLayout) (*ResourceManager, error) {
	rm := &ResourceManager{
		device:        device,
		queue:         queue,
		computeLayout: computeLayout,
		blitLayout:    blitLayout,
	}

	specs := []struct {
		target *hal.Buffer
		label  string
		size   uint64
		usage  gputypes.BufferUsage
	}{
		{&rm.configBuf, "fieldviz_config", configByteSize, gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst},
		{&rm.ppBuf, "fieldviz_postprocess", ppByteSize, gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc},
		{&rm.blitConfigBuf, "fieldviz_blit_config", blitConfigByteSize, gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst},
		{&rm.paramStaging, "fieldviz_param_staging", configByteSize, gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst},
		{&rm.ppStaging, "fieldviz_pp_staging", ppByteSize, gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst},
	}
	for _, s := range specs {
		buf, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: s.label,
			Size:  s.size,
			Usage: s.usage,
		})
		if err != nil {
			rm.Close()
			return nil, fmt.Errorf("gpu: create %s buffer: %w", s.label, err)
		}
		*s.target = buf
	}
	return rm, nil
}

// Ensure makes the canvas match the requested dimensions. When they
// change, a complete new resource set (canvas plus bind groups) is
// built first; only then is the old set destroyed. The generation
// counter increments on every swap.
func (rm *ResourceManager) Ensure(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("gpu: invalid canvas dimensions %dx%d", width, height)
	}
	if rm.cur != nil && rm.cur.width == width && rm.cur.height == height {
		return nil
	}

	set := &resourceSet{width: width, height: height}
	canvasSize := uint64(width) * uint64(height) * texelByteSize

	canvas, err := rm.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "fieldviz_canvas",
		Size:  canvasSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create canvas buffer: %w", err)
	}
	set.canvas = canvas

	entry := func(binding uint32, buf hal.Buffer) gputypes.BindGroupEntry {
		return gputypes.BindGroupEntry{
			Binding: binding,
			Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(),
				Offset: 0,
				Size:   0, // 0 = entire buffer
			},
		}
	}

	computeBG, err := rm.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "fieldviz_compute_bg",
		Layout: rm.computeLayout,
		Entries: []gputypes.BindGroupEntry{
			entry(0, rm.configBuf),
			entry(1, set.canvas),
			entry(2, rm.ppBuf),
		},
	})
	if err != nil {
		set.destroy(rm.device)
		return fmt.Errorf("gpu: create compute bind group: %w", err)
	}
	set.computeBG = computeBG

	blitBG, err := rm.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "fieldviz_blit_bg",
		Layout: rm.blitLayout,
		Entries: []gputypes.BindGroupEntry{
			entry(0, rm.blitConfigBuf),
			entry(1, set.canvas),
		},
	})
	if err != nil {
		set.destroy(rm.device)
		return fmt.Errorf("gpu: create blit bind group: %w", err)
	}
	set.blitBG = blitBG

	rm.generation++
	set.generation = rm.generation

	old := rm.cur
	rm.cur = set
	old.destroy(rm.device)

	slogger().Debug("gpu: canvas resources swapped",
		"size", fmt.Sprintf("%dx%d", width, height),
		"canvas_bytes", canvasSize,
		"generation", set.generation)
	return nil
}

// StageUpload writes the pending uniform and reset blocks into the
// staging buffers. The dispatcher copies them into the live buffers at
// the head of the compute command sequence, ahead of every pass.
func (rm *ResourceManager) StageUpload(paramBytes []byte, threshold float32) error {
	if rm.cur == nil {
		return errNotInitialized
	}
	if len(paramBytes) > configByteSize-configHeaderSize {
		return fmt.Errorf("gpu: parameter record too large: %d bytes", len(paramBytes))
	}

	cfg := make([]byte, configByteSize)
	le := binary.LittleEndian
	le.PutUint32(cfg[0:4], rm.cur.width)
	le.PutUint32(cfg[4:8], rm.cur.height)
	copy(cfg[configHeaderSize:], paramBytes)
	rm.queue.WriteBuffer(rm.paramStaging, 0, cfg)

	rm.queue.WriteBuffer(rm.ppStaging, 0, ppResetBlock(threshold))
	return nil
}

// EncodeUploadCopies records the staging-to-live copies for the config
// uniform and the post-process reset. Encoded first in the compute
// command sequence so every stage sees the fresh parameters and a clean
// stats/histogram record.
func (rm *ResourceManager) EncodeUploadCopies(encoder hal.CommandEncoder) {
	encoder.CopyBufferToBuffer(rm.paramStaging, rm.configBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: configByteSize},
	})
	encoder.CopyBufferToBuffer(rm.ppStaging, rm.ppBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: ppByteSize},
	})
}

// WriteBlitConfig updates the blit uniform with the presentation
// surface size; the canvas size comes from the current resource set.
func (rm *ResourceManager) WriteBlitConfig(surfaceWidth, surfaceHeight uint32) error {
	if rm.cur == nil {
		return errNotInitialized
	}
	buf := make([]byte, blitConfigByteSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], surfaceWidth)
	le.PutUint32(buf[4:8], surfaceHeight)
	le.PutUint32(buf[8:12], rm.cur.width)
	le.PutUint32(buf[12:16], rm.cur.height)
	rm.queue.WriteBuffer(rm.blitConfigBuf, 0, buf)
	return nil
}

// Canvas returns the live canvas buffer, or nil before the first Ensure.
func (rm *ResourceManager) Canvas() hal.Buffer {
	if rm.cur == nil {
		return nil
	}
	return rm.cur.canvas
}

// ComputeBindGroup returns the bind group shared by all compute stages.
func (rm *ResourceManager) ComputeBindGroup() hal.BindGroup {
	if rm.cur == nil {
		return nil
	}
	return rm.cur.computeBG
}

// BlitBindGroup returns the bind group for the render stage.
func (rm *ResourceManager) BlitBindGroup() hal.BindGroup {
	if rm.cur == nil {
		return nil
	}
	return rm.cur.blitBG
}

// PostProcessBuffer returns the stats/histogram/CDF storage block.
func (rm *ResourceManager) PostProcessBuffer() hal.Buffer { return rm.ppBuf }

// Size returns the current canvas dimensions, or zeros before Ensure.
func (rm *ResourceManager) Size() (uint32, uint32) {
	if rm.cur == nil {
		return 0, 0
	}
	return rm.cur.width, rm.cur.height
}

// Generation returns the resource-set generation, incremented on every
// resize swap.
func (rm *ResourceManager) Generation() uint64 { return rm.generation }

// Close releases everything the manager owns.
func (rm *ResourceManager) Close() {
	rm.cur.destroy(rm.device)
	rm.cur = nil

	for _, buf := range []*hal.Buffer{&rm.ppStaging, &rm.paramStaging, &rm.blitConfigBuf, &rm.ppBuf, &rm.configBuf} {
		if *buf != nil {
			rm.device.DestroyBuffer(*buf)
			*buf = nil
		}
	}
}

// ppResetBlock builds the reset image of the PostProcess block:
// value_min at the largest finite f32, value_max and all counters at
// zero, the exclusion threshold in place, table zeroed.
func ppResetBlock(threshold float32) []byte {
	buf := make([]byte, ppByteSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], ppValueMinInit)
	// value_max, histogram_n, histogram[256] stay zero.
	le.PutUint32(buf[(3+256)*4:], math.Float32bits(threshold))
	// cdf_non_zero and cdf[256] stay zero.
	return buf
}
