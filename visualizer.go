package fieldviz

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/fieldviz/fieldcpu"
	"github.com/gogpu/fieldviz/internal/gpu"
	"github.com/gogpu/fieldviz/kernel"
)

// ErrInvalidDimensions is returned when a surface dimension is not
// positive.
var ErrInvalidDimensions = errors.New("fieldviz: surface dimensions must be positive")

// SupersampleFactor is the canvas-to-surface resolution ratio. The
// field is computed at this multiple of the presentation dimensions and
// downsampled on export.
const SupersampleFactor = 2

// Stats is the reduced value range of the last computed field and the
// number of texels the histogram included.
type Stats struct {
	ValueMin      float64
	ValueMax      float64
	TotalIncluded uint32
}

// Visualizer ties the interaction state machine to a compute pipeline.
// It prefers the GPU pipeline and falls back to the CPU reference when
// no usable device exists. Not safe for concurrent use.
type Visualizer struct {
	state         *State
	width, height uint32
	threshold     float64

	// kern is the field function for the CPU pipeline. The GPU
	// pipeline evaluates its built-in field shader, which matches
	// kernel.Faraday.
	kern kernel.Func

	dev *gpu.Visualizer
	cpu *fieldcpu.Result
}

// New creates a Visualizer with the given presentation dimensions and
// default parameters. When GPU initialization fails the Visualizer
// still works, running every stage on the CPU.
func New(width, height int) (*Visualizer, error) {
	v, err := newVisualizer(width, height)
	if err != nil {
		return nil, err
	}
	dev, err := gpu.New(v.canvasWidth(), v.canvasHeight())
	if err != nil {
		Logger().Warn("gpu unavailable, using cpu pipeline", "error", err)
	} else {
		v.dev = dev
	}
	return v, nil
}

// NewCPU creates a Visualizer pinned to the CPU reference pipeline,
// regardless of GPU availability.
func NewCPU(width, height int) (*Visualizer, error) {
	return newVisualizer(width, height)
}

// NewWithProvider creates a Visualizer on an externally owned GPU
// device, typically one shared with a windowing surface. Unlike New it
// fails rather than falling back: a caller supplying a device expects
// it to be used.
func NewWithProvider(provider gpucontext.DeviceProvider, width, height int) (*Visualizer, error) {
	v, err := newVisualizer(width, height)
	if err != nil {
		return nil, err
	}
	dev, err := gpu.NewWithProvider(provider, v.canvasWidth(), v.canvasHeight())
	if err != nil {
		return nil, err
	}
	v.dev = dev
	return v, nil
}

func newVisualizer(width, height int) (*Visualizer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return &Visualizer{
		state:  NewState(DefaultParameters()),
		width:  uint32(width),
		height: uint32(height),
	}, nil
}

func (v *Visualizer) canvasWidth() uint32  { return v.width * SupersampleFactor }
func (v *Visualizer) canvasHeight() uint32 { return v.height * SupersampleFactor }

// State returns the interaction state machine driving this Visualizer.
func (v *Visualizer) State() *State { return v.state }

// UsingGPU reports whether the GPU pipeline is active.
func (v *Visualizer) UsingGPU() bool { return v.dev != nil }

// SetThreshold sets the histogram exclusion floor: only recalibrated
// values strictly greater than it are counted. Takes effect on the next
// compute run.
func (v *Visualizer) SetThreshold(t float64) {
	v.threshold = t
	v.state.RequestRecompute()
}

// SetKernel replaces the field function of the CPU pipeline. The GPU
// pipeline keeps its built-in field shader.
func (v *Visualizer) SetKernel(f kernel.Func) {
	v.kern = f
	v.state.RequestRecompute()
}

// Resize recreates the canvas for new presentation dimensions. The
// canvas is never resized in place; a full recompute is scheduled.
func (v *Visualizer) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	v.width, v.height = uint32(width), uint32(height)
	if v.dev != nil {
		if err := v.dev.Resize(v.canvasWidth(), v.canvasHeight()); err != nil {
			return err
		}
	}
	v.cpu = nil
	v.state.RequestRecompute()
	return nil
}

// Frame advances the session one frame: runs the compute sequence when
// the state machine requires it, then renders the canvas at the
// presentation dimensions. The returned slice is tightly packed RGBA.
//
// The dirty and recompute flags clear only after the work is enqueued;
// a failed compute leaves them set so the next frame retries.
func (v *Visualizer) Frame() ([]byte, error) {
	if v.state.ShouldCompute() {
		if err := v.compute(); err != nil {
			return nil, err
		}
		v.state.ConsumeDirty()
		v.state.ConsumeRecompute()
	}
	return v.render()
}

func (v *Visualizer) compute() error {
	p := v.state.Parameters()
	if v.dev != nil {
		return v.dev.Compute(p.Bytes(), float32(v.threshold))
	}
	v.cpu = fieldcpu.Run(fieldcpu.Config{
		Width:  int(v.canvasWidth()),
		Height: int(v.canvasHeight()),
		XMin:   p.XRange.Min, XMax: p.XRange.Max,
		YMin: p.YRange.Min, YMax: p.YRange.Max,
		Kernel: v.kern,
		Params: kernel.Params{
			IterationLimit: p.IterationLimit,
			SampleCount:    p.SampleCount,
			StepSize:       float64(p.StepSize),
			Coupling:       float64(p.CouplingConstant),
		},
		Threshold: v.threshold,
	})
	return nil
}

func (v *Visualizer) render() ([]byte, error) {
	if v.dev != nil {
		return v.dev.RenderFrame(v.width, v.height)
	}
	if v.cpu == nil {
		return nil, fmt.Errorf("fieldviz: no field computed yet")
	}
	img := &image.RGBA{
		Pix:    v.cpu.Pixels(),
		Stride: v.cpu.Width * 4,
		Rect:   image.Rect(0, 0, v.cpu.Width, v.cpu.Height),
	}
	return downscale(img, int(v.width), int(v.height)).Pix, nil
}

// Stats reads back the value range and histogram population of the
// last computed field.
func (v *Visualizer) Stats() (Stats, error) {
	if v.dev != nil {
		s, err := v.dev.ReadStats()
		if err != nil {
			return Stats{}, err
		}
		return Stats{
			ValueMin:      float64(s.Min),
			ValueMax:      float64(s.Max),
			TotalIncluded: s.Included,
		}, nil
	}
	if v.cpu == nil {
		return Stats{}, fmt.Errorf("fieldviz: no field computed yet")
	}
	return Stats{
		ValueMin:      v.cpu.Stats.ValueMin,
		ValueMax:      v.cpu.Stats.ValueMax,
		TotalIncluded: v.cpu.Histogram.TotalIncluded,
	}, nil
}

// ExportPNG snapshots the canvas, downsamples it to the presentation
// dimensions and writes a timestamped PNG named after prefix. The path
// written is returned. Export failures are reported to the caller and
// never tear the session down.
func (v *Visualizer) ExportPNG(prefix string) (string, error) {
	img, err := v.snapshot()
	if err != nil {
		return "", err
	}
	out := downscale(img, int(v.width), int(v.height))
	name, err := writePNG(out, prefix)
	if err != nil {
		Logger().Warn("export failed", "prefix", prefix, "error", err)
		return "", err
	}
	Logger().Info("exported field", "path", name)
	return name, nil
}

func (v *Visualizer) snapshot() (*image.RGBA, error) {
	if v.dev != nil {
		texels, w, h, err := v.dev.CanvasTexels()
		if err != nil {
			return nil, err
		}
		return canvasImage(texels, int(w), int(h))
	}
	if v.cpu == nil {
		return nil, fmt.Errorf("%w: no field computed yet", ErrExportCanvas)
	}
	return &image.RGBA{
		Pix:    v.cpu.Pixels(),
		Stride: v.cpu.Width * 4,
		Rect:   image.Rect(0, 0, v.cpu.Width, v.cpu.Height),
	}, nil
}

// Close releases the GPU pipeline, if any.
func (v *Visualizer) Close() {
	if v.dev != nil {
		v.dev.Close()
		v.dev = nil
	}
}
