//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Register the Vulkan backend for standalone device creation.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// halProvider is the shape external device providers must satisfy,
// asserted structurally so callers do not need to import hal.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// Stats is the reduced field range and histogram population read back
// from the post-process buffer after a compute sequence.
type Stats struct {
	Min      float32
	Max      float32
	Included uint32
}

// Visualizer owns the GPU side of the field pipeline: device bootstrap,
// the six-stage compute sequence, the blit presentation pass, and the
// readbacks feeding export. All methods must be called from one
// goroutine.
type Visualizer struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool

	dispatcher *computeDispatcher
	blit       *blitPipeline
	resources  *ResourceManager
}

// New creates a Visualizer with its own Vulkan device and a canvas of
// the given dimensions.
func New(width, height uint32) (*Visualizer, error) {
	v := &Visualizer{}
	if err := v.initGPU(); err != nil {
		return nil, err
	}
	if err := v.initPipelines(width, height); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

// NewWithProvider creates a Visualizer on an externally owned device,
// typically shared with a windowing surface. The provider must expose
// HalDevice() and HalQueue() returning hal handles; the Visualizer does
// not destroy the device on Close.
func NewWithProvider(provider any, width, height uint32) (*Visualizer, error) {
	p, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("gpu: provider %T does not expose hal device and queue", provider)
	}
	device, ok := p.HalDevice().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("gpu: provider returned non-hal device %T", p.HalDevice())
	}
	queue, ok := p.HalQueue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("gpu: provider returned non-hal queue %T", p.HalQueue())
	}

	v := &Visualizer{device: device, queue: queue, external: true}
	if err := v.initPipelines(width, height); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

func (v *Visualizer) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("gpu: vulkan backend not available")
	}

	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("gpu: create instance: %w", err)
	}
	v.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("gpu: no adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("gpu: open device: %w", err)
	}
	v.device = openDev.Device
	v.queue = openDev.Queue

	slogger().Debug("gpu device opened",
		slog.String("adapter", selected.Info.Name))
	return nil
}

func (v *Visualizer) initPipelines(width, height uint32) error {
	v.dispatcher = newComputeDispatcher(v.device, v.queue)
	if err := v.dispatcher.init(); err != nil {
		return err
	}

	v.blit = newBlitPipeline(v.device, v.queue)
	if err := v.blit.init(); err != nil {
		return err
	}

	rm, err := NewResourceManager(v.device, v.queue, v.dispatcher.bindLayout, v.blit.bindLayout)
	if err != nil {
		return err
	}
	v.resources = rm

	return v.Resize(width, height)
}

// Resize recreates the canvas and bind groups at the new dimensions.
// The previous canvas stays live until the replacement set is complete.
func (v *Visualizer) Resize(width, height uint32) error {
	if v.resources == nil {
		return errNotInitialized
	}
	if err := v.resources.Ensure(width, height); err != nil {
		return err
	}
	return v.resources.WriteBlitConfig(width, height)
}

// Compute stages the parameter block and runs the full six-stage
// sequence. It returns once the GPU signals completion; carried state
// (stats, histogram, CDF) is reset as part of the upload.
func (v *Visualizer) Compute(paramBytes []byte, threshold float32) error {
	if v.resources == nil || v.dispatcher == nil {
		return errNotInitialized
	}
	if err := v.resources.StageUpload(paramBytes, threshold); err != nil {
		return err
	}
	return v.dispatcher.dispatch(v.resources)
}

// RenderTo blits the canvas into an externally owned target view,
// typically the current surface frame. surfaceW and surfaceH are the
// target dimensions used for canvas sampling.
func (v *Visualizer) RenderTo(view hal.TextureView, surfaceW, surfaceH uint32) error {
	if v.resources == nil || v.blit == nil {
		return errNotInitialized
	}
	if err := v.resources.WriteBlitConfig(surfaceW, surfaceH); err != nil {
		return err
	}
	return v.blit.renderTo(view, v.resources.BlitBindGroup())
}

// RenderFrame blits the canvas into an offscreen target of the given
// dimensions and returns the frame as tightly packed RGBA bytes.
func (v *Visualizer) RenderFrame(width, height uint32) ([]byte, error) {
	if v.resources == nil || v.blit == nil {
		return nil, errNotInitialized
	}
	if err := v.resources.WriteBlitConfig(width, height); err != nil {
		return nil, err
	}
	return v.blit.renderOffscreen(v.resources.BlitBindGroup(), width, height)
}

// CanvasTexels reads the full canvas back as float32 RGBA texels in
// display units, along with the canvas dimensions.
func (v *Visualizer) CanvasTexels() ([]float32, uint32, uint32, error) {
	if v.resources == nil {
		return nil, 0, 0, errNotInitialized
	}
	texels, err := readCanvas(v.device, v.queue, v.resources)
	if err != nil {
		return nil, 0, 0, err
	}
	w, h := v.resources.Size()
	return texels, w, h, nil
}

// ReadStats reads back the reduced min/max and histogram population
// from the post-process buffer.
func (v *Visualizer) ReadStats() (Stats, error) {
	if v.resources == nil {
		return Stats{}, errNotInitialized
	}

	staging, err := v.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "fieldviz_stats_staging",
		Size:  12,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return Stats{}, fmt.Errorf("gpu: create stats staging buffer: %w", err)
	}
	defer v.device.DestroyBuffer(staging)

	encoder, err := v.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "fieldviz_stats_read",
	})
	if err != nil {
		return Stats{}, fmt.Errorf("gpu: create stats encoder: %w", err)
	}
	if err := encoder.BeginEncoding("fieldviz_stats_read"); err != nil {
		return Stats{}, fmt.Errorf("gpu: begin stats encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(v.resources.PostProcessBuffer(), staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: 12},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return Stats{}, fmt.Errorf("gpu: end stats encoding: %w", err)
	}
	defer v.device.FreeCommandBuffer(cmdBuf)

	if err := v.blit.submitAndWait(cmdBuf); err != nil {
		return Stats{}, err
	}

	raw := make([]byte, 12)
	if err := v.queue.ReadBuffer(staging, 0, raw); err != nil {
		return Stats{}, fmt.Errorf("gpu: stats readback: %w", err)
	}
	return Stats{
		Min:      math.Float32frombits(binary.LittleEndian.Uint32(raw[0:])),
		Max:      math.Float32frombits(binary.LittleEndian.Uint32(raw[4:])),
		Included: binary.LittleEndian.Uint32(raw[8:]),
	}, nil
}

// Size returns the current canvas dimensions.
func (v *Visualizer) Size() (uint32, uint32) {
	if v.resources == nil {
		return 0, 0
	}
	return v.resources.Size()
}

// Close releases all GPU resources. The device and instance are only
// destroyed when the Visualizer created them itself.
func (v *Visualizer) Close() {
	if v.blit != nil {
		v.blit.destroy()
		v.blit = nil
	}
	if v.dispatcher != nil {
		v.dispatcher.destroy()
		v.dispatcher = nil
	}
	if v.resources != nil {
		v.resources.Close()
		v.resources = nil
	}
	if !v.external && v.device != nil {
		v.device.Destroy()
	}
	v.device = nil
	v.queue = nil
	if v.instance != nil {
		v.instance.Destroy()
		v.instance = nil
	}
}
