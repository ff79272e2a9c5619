//go:build !nogpu

package gpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/blit.wgsl
var shaderBlit string

// copyPitchAlignment is the BytesPerRow alignment required for
// texture-to-buffer copies.
const copyPitchAlignment = 256

// blitPipeline draws the finished canvas full screen: one triangle, a
// fragment shader that indexes the canvas storage buffer by normalized
// position. It carries no computation; the compute sequence may be
// skipped while the blit re-presents the cached canvas every frame.
type blitPipeline struct {
	device hal.Device
	queue  hal.Queue

	module         hal.ShaderModule
	bindLayout     hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	pipeline       hal.RenderPipeline

	// Offscreen presentation target, used when no surface view is
	// supplied (headless rendering and tests).
	targetTex  hal.Texture
	targetView hal.TextureView
	width      uint32
	height     uint32
}

func newBlitPipeline(device hal.Device, queue hal.Queue) *blitPipeline {
	return &blitPipeline{device: device, queue: queue}
}

// blitBindLayoutEntries matches @group(0) in blit.wgsl: the blit config
// uniform and the canvas as read-only storage, both visible to the
// fragment stage (the uniform also feeds no vertex work, but sharing
// one layout keeps the bind group rebuild on resize to a single set).
func blitBindLayoutEntries() []gputypes.BindGroupLayoutEntry {
	return []gputypes.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: gputypes.ShaderStageFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		},
		{
			Binding:    1,
			Visibility: gputypes.ShaderStageFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
		},
	}
}

func (b *blitPipeline) init() error {
	if b.pipeline != nil {
		return nil
	}

	spirv, err := compileWGSL(shaderBlit)
	if err != nil {
		return fmt.Errorf("gpu: compile blit shader: %w", err)
	}
	module, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "fieldviz_blit",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("gpu: create blit shader module: %w", err)
	}
	b.module = module

	bindLayout, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "fieldviz_blit_bgl",
		Entries: blitBindLayoutEntries(),
	})
	if err != nil {
		b.destroy()
		return fmt.Errorf("gpu: create blit bind group layout: %w", err)
	}
	b.bindLayout = bindLayout

	pipelineLayout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "fieldviz_blit_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		b.destroy()
		return fmt.Errorf("gpu: create blit pipeline layout: %w", err)
	}
	b.pipelineLayout = pipelineLayout

	pipeline, err := b.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "fieldviz_blit",
		Layout: b.pipelineLayout,
		Vertex: hal.VertexState{
			Module:     b.module,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     b.module,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    gputypes.TextureFormatBGRA8Unorm,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		b.destroy()
		return fmt.Errorf("gpu: create blit pipeline: %w", err)
	}
	b.pipeline = pipeline
	return nil
}

// ensureTarget creates or recreates the offscreen presentation texture
// when the requested dimensions differ from the current size.
func (b *blitPipeline) ensureTarget(w, h uint32) error {
	if b.width == w && b.height == h && b.targetTex != nil {
		return nil
	}
	b.destroyTarget()

	tex, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "fieldviz_blit_target",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("gpu: create blit target: %w", err)
	}
	b.targetTex = tex

	view, err := b.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "fieldviz_blit_target_view",
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		b.destroyTarget()
		return fmt.Errorf("gpu: create blit target view: %w", err)
	}
	b.targetView = view
	b.width = w
	b.height = h
	return nil
}

// encodeBlit records the full-screen draw into the given target view.
func (b *blitPipeline) encodeBlit(encoder hal.CommandEncoder, view hal.TextureView, bindGroup hal.BindGroup) {
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "fieldviz_blit",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	rp.SetPipeline(b.pipeline)
	rp.SetBindGroup(0, bindGroup, nil)
	rp.Draw(3, 1, 0, 0)
	rp.End()
}

// renderTo draws the canvas into an externally owned target view, e.g.
// a surface frame. Presentation synchronization is the caller's
// concern; no fence is used.
func (b *blitPipeline) renderTo(view hal.TextureView, bindGroup hal.BindGroup) error {
	if b.pipeline == nil {
		return errNotInitialized
	}
	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "fieldviz_blit",
	})
	if err != nil {
		return fmt.Errorf("gpu: create blit encoder: %w", err)
	}
	if err := encoder.BeginEncoding("fieldviz_blit"); err != nil {
		return fmt.Errorf("gpu: begin blit encoding: %w", err)
	}
	b.encodeBlit(encoder, view, bindGroup)
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("gpu: end blit encoding: %w", err)
	}
	defer b.device.FreeCommandBuffer(cmdBuf)

	if err := b.queue.Submit([]hal.CommandBuffer{cmdBuf}, nil, 0); err != nil {
		return fmt.Errorf("gpu: submit blit: %w", err)
	}
	return nil
}

// renderOffscreen draws the canvas into the offscreen target and reads
// the frame back as tightly packed RGBA bytes.
func (b *blitPipeline) renderOffscreen(bindGroup hal.BindGroup, w, h uint32) ([]byte, error) {
	if b.pipeline == nil {
		return nil, errNotInitialized
	}
	if err := b.ensureTarget(w, h); err != nil {
		return nil, err
	}

	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "fieldviz_blit_offscreen",
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create blit encoder: %w", err)
	}
	if err := encoder.BeginEncoding("fieldviz_blit_offscreen"); err != nil {
		return nil, fmt.Errorf("gpu: begin blit encoding: %w", err)
	}
	b.encodeBlit(encoder, b.targetView, bindGroup)

	// After the render pass the target is in attachment layout;
	// transition for the transfer source copy.
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: b.targetTex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})

	bytesPerRow := w * 4
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	stagingSize := uint64(alignedBytesPerRow) * uint64(h)

	staging, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "fieldviz_blit_staging",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("gpu: create blit staging buffer: %w", err)
	}
	defer b.device.DestroyBuffer(staging)

	encoder.CopyTextureToBuffer(b.targetTex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: alignedBytesPerRow, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: b.targetTex, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("gpu: end blit encoding: %w", err)
	}
	defer b.device.FreeCommandBuffer(cmdBuf)

	if err := b.submitAndWait(cmdBuf); err != nil {
		return nil, err
	}

	readback := make([]byte, stagingSize)
	if err := b.queue.ReadBuffer(staging, 0, readback); err != nil {
		return nil, fmt.Errorf("gpu: blit readback: %w", err)
	}

	// Strip row padding and swizzle BGRA to RGBA.
	pixels := make([]byte, int(bytesPerRow)*int(h))
	for row := uint32(0); row < h; row++ {
		src := readback[row*alignedBytesPerRow : row*alignedBytesPerRow+bytesPerRow]
		dst := pixels[row*bytesPerRow : (row+1)*bytesPerRow]
		for px := 0; px < len(src); px += 4 {
			dst[px+0] = src[px+2]
			dst[px+1] = src[px+1]
			dst[px+2] = src[px+0]
			dst[px+3] = src[px+3]
		}
	}
	return pixels, nil
}

func (b *blitPipeline) submitAndWait(cmdBuf hal.CommandBuffer) error {
	fence, err := b.device.CreateFence()
	if err != nil {
		return fmt.Errorf("gpu: create fence: %w", err)
	}
	defer b.device.DestroyFence(fence)

	if err := b.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("gpu: submit blit: %w", err)
	}
	ok, err := b.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("gpu: wait for blit fence: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w after %v", ErrFenceTimeout, fenceTimeout)
	}
	return nil
}

func (b *blitPipeline) destroyTarget() {
	if b.targetView != nil {
		b.device.DestroyTextureView(b.targetView)
		b.targetView = nil
	}
	if b.targetTex != nil {
		b.device.DestroyTexture(b.targetTex)
		b.targetTex = nil
	}
	b.width, b.height = 0, 0
}

func (b *blitPipeline) destroy() {
	b.destroyTarget()
	if b.pipeline != nil {
		b.device.DestroyRenderPipeline(b.pipeline)
		b.pipeline = nil
	}
	if b.pipelineLayout != nil {
		b.device.DestroyPipelineLayout(b.pipelineLayout)
		b.pipelineLayout = nil
	}
	if b.bindLayout != nil {
		b.device.DestroyBindGroupLayout(b.bindLayout)
		b.bindLayout = nil
	}
	if b.module != nil {
		b.device.DestroyShaderModule(b.module)
		b.module = nil
	}
}

// readCanvas copies the canvas storage buffer into a map-read staging
// buffer and returns the texels as float32 values, 4 per texel. This is
// the only blocking readback on the export path; the wait is bounded by
// fenceTimeout.
func readCanvas(device hal.Device, queue hal.Queue, rm *ResourceManager) ([]float32, error) {
	canvas := rm.Canvas()
	if canvas == nil {
		return nil, errNotInitialized
	}
	w, h := rm.Size()
	size := uint64(w) * uint64(h) * texelByteSize

	staging, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "fieldviz_canvas_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create canvas staging buffer: %w", err)
	}
	defer device.DestroyBuffer(staging)

	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "fieldviz_canvas_read",
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create readback encoder: %w", err)
	}
	if err := encoder.BeginEncoding("fieldviz_canvas_read"); err != nil {
		return nil, fmt.Errorf("gpu: begin readback encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(canvas, staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("gpu: end readback encoding: %w", err)
	}
	defer device.FreeCommandBuffer(cmdBuf)

	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("gpu: create fence: %w", err)
	}
	defer device.DestroyFence(fence)

	if err := queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("gpu: submit readback: %w", err)
	}
	ok, err := device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return nil, fmt.Errorf("gpu: wait for readback fence: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w after %v", ErrFenceTimeout, fenceTimeout)
	}

	raw := make([]byte, size)
	if err := queue.ReadBuffer(staging, 0, raw); err != nil {
		return nil, fmt.Errorf("gpu: canvas readback: %w", err)
	}

	texels := make([]float32, len(raw)/4)
	for i := range texels {
		texels[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return texels, nil
}
