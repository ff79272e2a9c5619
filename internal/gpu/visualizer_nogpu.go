//go:build nogpu

package gpu

// Stats is the reduced field range and histogram population. In nogpu
// builds it is never populated.
type Stats struct {
	Min      float32
	Max      float32
	Included uint32
}

// Visualizer is a placeholder in builds compiled without GPU support.
// Construction always fails with ErrUnavailable so callers fall back to
// the CPU pipeline.
type Visualizer struct{}

func New(width, height uint32) (*Visualizer, error) {
	return nil, ErrUnavailable
}

func NewWithProvider(provider any, width, height uint32) (*Visualizer, error) {
	return nil, ErrUnavailable
}

func (v *Visualizer) Resize(width, height uint32) error { return ErrUnavailable }

func (v *Visualizer) Compute(paramBytes []byte, threshold float32) error {
	return ErrUnavailable
}

func (v *Visualizer) RenderFrame(width, height uint32) ([]byte, error) {
	return nil, ErrUnavailable
}

func (v *Visualizer) CanvasTexels() ([]float32, uint32, uint32, error) {
	return nil, 0, 0, ErrUnavailable
}

func (v *Visualizer) ReadStats() (Stats, error) { return Stats{}, ErrUnavailable }

func (v *Visualizer) Size() (uint32, uint32) { return 0, 0 }

func (v *Visualizer) Close() {}
