//go:build !nogpu

package gpu

import (
	_ "embed"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// fenceTimeout bounds every GPU wait so a wedged device cannot stall
// the host loop indefinitely.
const fenceTimeout = 5 * time.Second

// computeWGSize is the per-axis workgroup size of the per-texel stages.
// Must match the @workgroup_size attributes in shaders/.
const computeWGSize = 16

//go:embed shaders/field_generate.wgsl
var shaderFieldGenerate string

//go:embed shaders/stats_reduce.wgsl
var shaderStatsReduce string

//go:embed shaders/recalibrate.wgsl
var shaderRecalibrate string

//go:embed shaders/histogram.wgsl
var shaderHistogram string

//go:embed shaders/cdf.wgsl
var shaderCDF string

//go:embed shaders/equalize.wgsl
var shaderEqualize string

// fieldStage identifies one compute stage of the pipeline, in dispatch
// order. Each stage's output feeds the next through the canvas and
// post-process buffers; sequential compute passes within one command
// buffer provide the required inter-stage barriers.
type fieldStage int

const (
	stageFieldGenerate fieldStage = iota
	stageStatsReduce
	stageRecalibrate
	stageHistogram
	stageCDF
	stageEqualize

	stageCount
)

func (s fieldStage) String() string {
	switch s {
	case stageFieldGenerate:
		return "field_generate"
	case stageStatsReduce:
		return "stats_reduce"
	case stageRecalibrate:
		return "recalibrate"
	case stageHistogram:
		return "histogram"
	case stageCDF:
		return "cdf"
	case stageEqualize:
		return "equalize"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// stageSources maps stages to their embedded WGSL sources.
var stageSources = [stageCount]string{
	stageFieldGenerate: shaderFieldGenerate,
	stageStatsReduce:   shaderStatsReduce,
	stageRecalibrate:   shaderRecalibrate,
	stageHistogram:     shaderHistogram,
	stageCDF:           shaderCDF,
	stageEqualize:      shaderEqualize,
}

// computeDispatcher owns the six compute pipelines and the bind group
// layout they share: every stage binds the config uniform at 0, the
// canvas at 1, and the post-process block at 2, matching the
// @group(0) @binding(N) annotations in the shaders.
type computeDispatcher struct {
	device hal.Device
	queue  hal.Queue

	bindLayout     hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	modules        [stageCount]hal.ShaderModule
	pipelines      [stageCount]hal.ComputePipeline

	initialized bool
}

func newComputeDispatcher(device hal.Device, queue hal.Queue) *computeDispatcher {
	return &computeDispatcher{device: device, queue: queue}
}

// computeBindLayoutEntries describes the bindings shared by all stages.
func computeBindLayoutEntries() []gputypes.BindGroupLayoutEntry {
	return []gputypes.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		},
		{
			Binding:    1,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		},
		{
			Binding:    2,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		},
	}
}

// init compiles every stage shader to SPIR-V and builds the pipelines.
// Safe to call more than once; subsequent calls are no-ops.
func (d *computeDispatcher) init() error {
	if d.initialized {
		return nil
	}

	bindLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "fieldviz_compute_bgl",
		Entries: computeBindLayoutEntries(),
	})
	if err != nil {
		return fmt.Errorf("gpu: create compute bind group layout: %w", err)
	}
	d.bindLayout = bindLayout

	pipelineLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "fieldviz_compute_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		d.destroy()
		return fmt.Errorf("gpu: create compute pipeline layout: %w", err)
	}
	d.pipelineLayout = pipelineLayout

	for stage := fieldStage(0); stage < stageCount; stage++ {
		spirv, err := compileWGSL(stageSources[stage])
		if err != nil {
			d.destroy()
			return fmt.Errorf("gpu: compile %s shader: %w", stage, err)
		}

		module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  "fieldviz_" + stage.String(),
			Source: hal.ShaderSource{SPIRV: spirv},
		})
		if err != nil {
			d.destroy()
			return fmt.Errorf("gpu: create %s shader module: %w", stage, err)
		}
		d.modules[stage] = module

		pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  "fieldviz_" + stage.String(),
			Layout: d.pipelineLayout,
			Compute: hal.ComputeState{
				Module:     module,
				EntryPoint: "main",
			},
		})
		if err != nil {
			d.destroy()
			return fmt.Errorf("gpu: create %s pipeline: %w", stage, err)
		}
		d.pipelines[stage] = pipeline

		slogger().Debug("gpu: compute pipeline created",
			"stage", stage.String(),
			"spirv_words", len(spirv))
	}

	d.initialized = true
	slogger().Debug("gpu: compute dispatcher initialized", "stages", int(stageCount))
	return nil
}

// destroy releases every pipeline resource. After destroy the
// dispatcher must be re-initialized before use.
func (d *computeDispatcher) destroy() {
	for stage := fieldStage(0); stage < stageCount; stage++ {
		if d.pipelines[stage] != nil {
			d.device.DestroyComputePipeline(d.pipelines[stage])
			d.pipelines[stage] = nil
		}
		if d.modules[stage] != nil {
			d.device.DestroyShaderModule(d.modules[stage])
			d.modules[stage] = nil
		}
	}
	if d.pipelineLayout != nil {
		d.device.DestroyPipelineLayout(d.pipelineLayout)
		d.pipelineLayout = nil
	}
	if d.bindLayout != nil {
		d.device.DestroyBindGroupLayout(d.bindLayout)
		d.bindLayout = nil
	}
	d.initialized = false
}

// workgroups returns the dispatch extents for a stage over a w×h
// canvas. The per-texel stages use ceiling division by the workgroup
// size; the CDF stage runs as a single sequential workgroup.
func (d *computeDispatcher) workgroups(stage fieldStage, w, h uint32) (uint32, uint32) {
	if stage == stageCDF {
		return 1, 1
	}
	gx := (w + computeWGSize - 1) / computeWGSize
	gy := (h + computeWGSize - 1) / computeWGSize
	return gx, gy
}

// dispatch runs the complete six-stage compute sequence against the
// current resource set. The uniform and post-process reset copies are
// encoded first, then the stages in order; one submission with a
// bounded fence wait covers the whole sequence.
func (d *computeDispatcher) dispatch(rm *ResourceManager) error {
	if !d.initialized {
		return errNotInitialized
	}
	w, h := rm.Size()
	if w == 0 || h == 0 {
		return errNotInitialized
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "fieldviz_compute",
	})
	if err != nil {
		return fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("fieldviz_compute"); err != nil {
		return fmt.Errorf("gpu: begin encoding: %w", err)
	}

	// Parameter and reset copies run ahead of every compute pass.
	rm.EncodeUploadCopies(encoder)

	bg := rm.ComputeBindGroup()
	for stage := fieldStage(0); stage < stageCount; stage++ {
		gx, gy := d.workgroups(stage, w, h)
		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{
			Label: "fieldviz_" + stage.String(),
		})
		pass.SetPipeline(d.pipelines[stage])
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(gx, gy, 1)
		pass.End()
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("gpu: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	if err := d.submitAndWait(cmdBuf); err != nil {
		return err
	}

	slogger().Debug("gpu: compute sequence complete",
		"canvas", fmt.Sprintf("%dx%d", w, h),
		"stages", int(stageCount))
	return nil
}

// submitAndWait submits one command buffer and blocks until the GPU
// signals the fence or the bounded wait expires.
func (d *computeDispatcher) submitAndWait(cmdBuf hal.CommandBuffer) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("gpu: create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("gpu: submit: %w", err)
	}
	ok, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("gpu: wait for fence: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w after %v", ErrFenceTimeout, fenceTimeout)
	}
	return nil
}

// compileWGSL compiles WGSL source to SPIR-V words for the hal shader
// module path.
func compileWGSL(src string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}
