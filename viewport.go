package fieldviz

// MaxZoomDelta is the smallest range width the viewport accepts.
// Updates that would collapse a range below this width are rejected,
// keeping the texel-to-coordinate mapping away from floating-point
// degeneracy (NaN scale factors, zero-width divisions).
const MaxZoomDelta = 1e-10

// Range is a 1-D interval of the mathematical domain.
// A valid Range has Max > Min; viewport operations preserve validity
// as long as the zoom factor is positive.
type Range struct {
	Min, Max float64
}

// Width returns Max - Min.
func (r Range) Width() float64 { return r.Max - r.Min }

// Shift translates both endpoints by offset.
func (r Range) Shift(offset float64) Range {
	return Range{r.Min + offset, r.Max + offset}
}

// Scale multiplies both endpoints by factor, scaling around zero.
func (r Range) Scale(factor float64) Range {
	return Range{r.Min * factor, r.Max * factor}
}

// Lerp returns the point at relative position t within the range,
// so Lerp(0) == Min and Lerp(1) == Max.
func (r Range) Lerp(t float64) float64 {
	return t*(r.Max-r.Min) + r.Min
}

// ShiftSpeed returns the range width divided by divisor. It sizes a
// single key-press pan step so panning covers a constant fraction of
// the visible domain at any zoom level.
func (r Range) ShiftSpeed(divisor uint32) float64 {
	return (r.Max - r.Min) / float64(divisor)
}

// Map linearly remaps value from the from range into the to range.
func Map(value float64, from, to Range) float64 {
	return (value-from.Min)/(from.Max-from.Min)*(to.Max-to.Min) + to.Min
}

// Zoom scales both ranges by factor around the focus point:
// translate so focus sits at the origin, scale, translate back.
func Zoom(x, y Range, factor float64, focusX, focusY float64) (Range, Range) {
	xt := x.Shift(-focusX)
	yt := y.Shift(-focusY)

	xs := xt.Scale(factor)
	ys := yt.Scale(factor)

	return xs.Shift(focusX), ys.Shift(focusY)
}

// ZoomRelative zooms around a relative focus in [0,1]x[0,1], e.g. a
// normalized mouse position. The focus is resolved to absolute
// coordinates within the current ranges before zooming.
func ZoomRelative(x, y Range, factor float64, relX, relY float64) (Range, Range) {
	return Zoom(x, y, factor, x.Lerp(relX), y.Lerp(relY))
}
