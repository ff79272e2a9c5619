package fieldviz

// Default interaction speeds. Both are adjustable at runtime; the
// defaults match a comfortable step size for the default viewport.
const (
	defaultZoomSpeed    = 0.001
	defaultShiftDivisor = 50
)

// State is the host-side pipeline state machine. It owns the current
// FieldParameters and the two dirty flags coupling user input to GPU
// work:
//
//   - ParametersDirty: the parameter record changed and must be copied
//     to the GPU uniform ahead of the next compute sequence.
//   - RecomputeRequested: the compute sequence must run this frame.
//
// Both flags transition to clean only after the corresponding GPU work
// has been enqueued (ConsumeDirty / ConsumeRecompute), never before.
// In continuous mode the compute sequence runs every frame regardless
// of RecomputeRequested.
//
// State is not safe for concurrent use; it belongs to the single host
// control thread that sequences GPU work.
type State struct {
	params FieldParameters

	paramsDirty bool
	recompute   bool
	continuous  bool

	zoomSpeed    float64
	shiftDivisor uint32

	// Normalized mouse position in [0,1]x[0,1], the focus for wheel zoom.
	mouseX, mouseY float64
}

// NewState returns a State holding the given parameters, marked dirty so
// the first frame uploads and computes.
func NewState(params FieldParameters) *State {
	return &State{
		params:       params,
		paramsDirty:  true,
		recompute:    true,
		zoomSpeed:    defaultZoomSpeed,
		shiftDivisor: defaultShiftDivisor,
		mouseX:       0.5,
		mouseY:       0.5,
	}
}

// Parameters returns the current parameter record.
func (s *State) Parameters() FieldParameters { return s.params }

// SetParameters replaces the whole record and marks it dirty.
// Invalid records are rejected with ErrInvalidParameters.
func (s *State) SetParameters(p FieldParameters) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.params = p
	s.markChanged()
	return nil
}

// SetIterationLimit updates the kernel iteration cap.
func (s *State) SetIterationLimit(n uint32) {
	s.params.IterationLimit = n
	s.markChanged()
}

// SetSampleCount updates the kernel sample count.
func (s *State) SetSampleCount(n uint32) {
	s.params.SampleCount = n
	s.markChanged()
}

// SetStepSize updates the kernel integration step.
func (s *State) SetStepSize(dt float32) {
	s.params.StepSize = dt
	s.markChanged()
}

// SetCouplingConstant updates the kernel's free scalar.
func (s *State) SetCouplingConstant(mu float32) {
	s.params.CouplingConstant = mu
	s.markChanged()
}

// SetZoomSpeed adjusts the zoom step per wheel unit or key press.
func (s *State) SetZoomSpeed(speed float64) { s.zoomSpeed = speed }

// SetShiftDivisor adjusts the pan step: each key press pans by
// rangeWidth / divisor.
func (s *State) SetShiftDivisor(d uint32) {
	if d > 0 {
		s.shiftDivisor = d
	}
}

// SetContinuous toggles continuous mode: the compute sequence re-runs
// every frame regardless of dirty flags.
func (s *State) SetContinuous(on bool) { s.continuous = on }

// Continuous reports whether continuous mode is on.
func (s *State) Continuous() bool { return s.continuous }

// SetMousePosition records the normalized pointer position used as the
// wheel-zoom focus.
func (s *State) SetMousePosition(relX, relY float64) {
	s.mouseX, s.mouseY = relX, relY
}

// RequestRecompute forces the compute sequence to run on the next frame
// without touching the parameters.
func (s *State) RequestRecompute() { s.recompute = true }

// ShouldCompute reports whether the compute sequence must run this frame.
func (s *State) ShouldCompute() bool { return s.recompute || s.continuous }

// ParametersDirty reports whether the uniform copy is pending.
func (s *State) ParametersDirty() bool { return s.paramsDirty }

// ConsumeDirty clears the parameters-dirty flag. Call it only after the
// uniform copy has been enqueued ahead of the compute sequence.
func (s *State) ConsumeDirty() { s.paramsDirty = false }

// ConsumeRecompute clears the recompute flag. Call it only after the
// compute sequence has been enqueued.
func (s *State) ConsumeRecompute() { s.recompute = false }

func (s *State) markChanged() {
	s.paramsDirty = true
	s.recompute = true
}

// applyRanges installs the new ranges unless either collapses below
// MaxZoomDelta, in which case the update is silently dropped and the
// prior viewport is retained.
func (s *State) applyRanges(x, y Range) {
	if s.params.SetRanges(x, y) != nil {
		return
	}
	s.markChanged()
}

// PanLeft shifts the x range left by one shift step.
func (s *State) PanLeft() {
	step := s.params.XRange.ShiftSpeed(s.shiftDivisor)
	s.applyRanges(s.params.XRange.Shift(-step), s.params.YRange)
}

// PanRight shifts the x range right by one shift step.
func (s *State) PanRight() {
	step := s.params.XRange.ShiftSpeed(s.shiftDivisor)
	s.applyRanges(s.params.XRange.Shift(step), s.params.YRange)
}

// PanUp shifts the y range up by one shift step.
func (s *State) PanUp() {
	step := s.params.YRange.ShiftSpeed(s.shiftDivisor)
	s.applyRanges(s.params.XRange, s.params.YRange.Shift(step))
}

// PanDown shifts the y range down by one shift step.
func (s *State) PanDown() {
	step := s.params.YRange.ShiftSpeed(s.shiftDivisor)
	s.applyRanges(s.params.XRange, s.params.YRange.Shift(-step))
}

// ZoomIn zooms toward the viewport center by one key step.
func (s *State) ZoomIn() {
	s.zoomCenter(1 - 10*s.zoomSpeed)
}

// ZoomOut zooms away from the viewport center by one key step.
func (s *State) ZoomOut() {
	s.zoomCenter(1 + 10*s.zoomSpeed)
}

func (s *State) zoomCenter(factor float64) {
	x, y := ZoomRelative(s.params.XRange, s.params.YRange, factor, 0.5, 0.5)
	s.applyRanges(x, y)
}

// ZoomAt zooms by factor toward an arbitrary relative focus point,
// (0, 0) being the viewport's minimum corner and (1, 1) its maximum.
// Non-positive factors are ignored.
func (s *State) ZoomAt(relX, relY, factor float64) {
	if factor <= 0 {
		return
	}
	x, y := ZoomRelative(s.params.XRange, s.params.YRange, factor, relX, relY)
	s.applyRanges(x, y)
}

// Wheel zooms at the last recorded mouse position. A positive delta
// zooms out (factor > 1), matching scroll-up-to-widen conventions;
// negative deltas zoom in.
func (s *State) Wheel(delta float64) {
	factor := 1 + delta*s.zoomSpeed
	if factor <= 0 {
		return
	}
	x, y := ZoomRelative(s.params.XRange, s.params.YRange, factor, s.mouseX, s.mouseY)
	s.applyRanges(x, y)
}

// Drag pans by a normalized pointer delta: a drag across the full
// canvas width moves the viewport by one full range width.
func (s *State) Drag(relDX, relDY float64) {
	x := s.params.XRange.Shift(-relDX * s.params.XRange.Width())
	y := s.params.YRange.Shift(-relDY * s.params.YRange.Width())
	s.applyRanges(x, y)
}
