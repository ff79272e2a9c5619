// Package fieldcpu implements the full visualization pipeline on the
// CPU: field generation, global min/max reduction, recalibration,
// histogram, CDF, and equalization.
//
// It mirrors the GPU compute stages exactly and serves two roles: the
// fallback when no GPU is available, and the reference the GPU path is
// validated against. Stage boundaries and edge-case policies match the
// shaders bucket for bucket.
package fieldcpu

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gogpu/fieldviz/internal/parallel"
	"github.com/gogpu/fieldviz/kernel"
)

// displayMax is the top of the display range the normalization stages
// map into.
const displayMax = 255.0

// bucketCount is the histogram and CDF table size.
const bucketCount = 256

// Config describes one pipeline run.
type Config struct {
	// Width and Height are the canvas dimensions in texels.
	Width, Height int

	// XMin..YMax bound the visible mathematical domain. Texel (i, j)
	// maps to (XMin + i/Width·(XMax−XMin), YMin + j/Height·(YMax−YMin)).
	XMin, XMax float64
	YMin, YMax float64

	// Kernel is the field function. Nil selects kernel.Faraday.
	Kernel kernel.Func

	// Params is passed through to the kernel.
	Params kernel.Params

	// Threshold excludes texels from the histogram: only recalibrated
	// values strictly greater than Threshold are counted.
	Threshold float64
}

// Stats is the global value range of the raw field.
type Stats struct {
	ValueMin float64
	ValueMax float64
}

// Histogram is the 256-bucket frequency count over recalibrated values
// above the exclusion threshold.
type Histogram struct {
	Counts        [bucketCount]uint32
	TotalIncluded uint32
}

// CDF is the normalized cumulative distribution scaled to the display
// range. Table is non-decreasing with Table[255] == displayMax whenever
// TotalIncluded > 0, and all zero otherwise.
type CDF struct {
	ThresholdScaled float64
	NonZeroFloor    float64
	Table           [bucketCount]float64
}

// Result holds the finished field and the intermediate records of the
// run that produced it.
type Result struct {
	Width, Height int

	// Values is the equalized field in display units [0, 255],
	// row-major, one scalar per texel.
	Values []float64

	Stats     Stats
	Histogram Histogram
	CDF       CDF
}

// Run executes all six stages and returns the finished field.
func Run(cfg Config) *Result {
	values := Generate(cfg)
	st := Reduce(values)
	Recalibrate(values, st)
	h := BuildHistogram(values, cfg.Threshold)
	cdf := BuildCDF(h, cfg.Threshold)
	Equalize(values, cdf)
	return &Result{
		Width:     cfg.Width,
		Height:    cfg.Height,
		Values:    values,
		Stats:     st,
		Histogram: h,
		CDF:       cdf,
	}
}

// Generate evaluates the kernel at every texel and returns the raw
// field, row-major. Rows are evaluated in parallel; the kernel contract
// (pure, no shared state) makes the split safe.
func Generate(cfg Config) []float64 {
	fn := cfg.Kernel
	if fn == nil {
		fn = kernel.Faraday
	}
	values := make([]float64, cfg.Width*cfg.Height)

	parallelRows(cfg.Height, func(y0, y1 int) {
		for j := y0; j < y1; j++ {
			fy := mapTexel(j, cfg.Height, cfg.YMin, cfg.YMax)
			row := values[j*cfg.Width : (j+1)*cfg.Width]
			for i := range row {
				fx := mapTexel(i, cfg.Width, cfg.XMin, cfg.XMax)
				row[i] = fn(fx, fy, cfg.Params)
			}
		}
	})
	return values
}

// Reduce folds every texel into the global min/max. The fold is
// commutative and associative, so per-band partials combine in any
// order; the combine below is the single synchronization point before
// any reader of the stats runs.
func Reduce(values []float64) Stats {
	bands := runtime.GOMAXPROCS(0)
	if bands > len(values) {
		bands = 1
	}
	partials := make([]Stats, bands)
	var wg sync.WaitGroup
	chunk := (len(values) + bands - 1) / bands
	for b := 0; b < bands; b++ {
		lo := b * chunk
		hi := min(lo+chunk, len(values))
		if lo >= hi {
			partials[b] = Stats{ValueMin: math.Inf(1), ValueMax: 0}
			continue
		}
		wg.Add(1)
		go func(b, lo, hi int) {
			defer wg.Done()
			st := Stats{ValueMin: math.Inf(1), ValueMax: 0}
			for _, v := range values[lo:hi] {
				st.ValueMin = math.Min(st.ValueMin, v)
				st.ValueMax = math.Max(st.ValueMax, v)
			}
			partials[b] = st
		}(b, lo, hi)
	}
	wg.Wait()

	st := Stats{ValueMin: math.Inf(1), ValueMax: 0}
	for _, p := range partials {
		st.ValueMin = math.Min(st.ValueMin, p.ValueMin)
		st.ValueMax = math.Max(st.ValueMax, p.ValueMax)
	}
	return st
}

// Recalibrate rescales every value so ValueMin maps to 0 and ValueMax
// to displayMax. A flat field (zero dynamic range) stays at 0 rather
// than dividing by zero.
func Recalibrate(values []float64, st Stats) {
	span := st.ValueMax - st.ValueMin
	parallelRows(len(values), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			v := values[i] - st.ValueMin
			if span != 0 {
				v *= displayMax / span
			}
			values[i] = v
		}
	})
}

// BuildHistogram counts recalibrated values into 256 buckets. Only
// values strictly greater than threshold are included; a value of
// exactly threshold is excluded. Counts use atomic increments so the
// per-texel order is irrelevant, matching the GPU stage.
func BuildHistogram(values []float64, threshold float64) Histogram {
	var h Histogram
	parallelRows(len(values), func(lo, hi int) {
		for _, v := range values[lo:hi] {
			if v <= threshold {
				continue
			}
			atomic.AddUint32(&h.Counts[bucket(v)], 1)
			atomic.AddUint32(&h.TotalIncluded, 1)
		}
	})
	return h
}

// BuildCDF turns the histogram into the equalization lookup table:
// normalize each bucket by the included total, prefix-sum, scale by
// displayMax, round to the nearest integer. With nothing included the
// table stays all zero and equalization maps every texel to zero.
func BuildCDF(h Histogram, threshold float64) CDF {
	cdf := CDF{ThresholdScaled: threshold}
	if h.TotalIncluded == 0 {
		return cdf
	}
	total := float64(h.TotalIncluded)
	sum := 0.0
	for i := 0; i < bucketCount; i++ {
		sum += float64(h.Counts[i]) / total
		scaled := math.Round(sum * displayMax)
		if cdf.NonZeroFloor == 0 && scaled > 0 {
			cdf.NonZeroFloor = scaled
		}
		cdf.Table[i] = scaled
	}
	return cdf
}

// Equalize remaps every texel through the CDF table, producing the
// final displayed field.
func Equalize(values []float64, cdf CDF) {
	parallelRows(len(values), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			values[i] = cdf.Table[bucket(values[i])]
		}
	})
}

// Pixels converts the finished field to 8-bit RGBA: each value is
// scaled from display units to [0, 1], clamped, and expanded to an
// opaque gray pixel.
func (r *Result) Pixels() []byte {
	pix := make([]byte, len(r.Values)*4)
	for i, v := range r.Values {
		c := v / displayMax
		if c < 0 {
			c = 0
		} else if c > 1 {
			c = 1
		}
		b := byte(math.Round(c * 255))
		pix[i*4+0] = b
		pix[i*4+1] = b
		pix[i*4+2] = b
		pix[i*4+3] = 0xFF
	}
	return pix
}

// bucket clamps a display-range value to [0, 255] and truncates to its
// histogram bucket. NaN lands in bucket 0, the value-to-u32 conversion
// the GPU stage applies.
func bucket(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > displayMax {
		return bucketCount - 1
	}
	return int(v)
}

// mapTexel maps texel index i of n onto [lo, hi), the same linear map
// the shaders apply to the global invocation id.
func mapTexel(i, n int, lo, hi float64) float64 {
	return float64(i)/float64(n)*(hi-lo) + lo
}

// parallelRows splits [0, n) into contiguous bands and runs fn on each
// band via the shared work-stealing pool, which rebalances the uneven
// per-texel kernel cost.
func parallelRows(n int, fn func(lo, hi int)) {
	parallel.Rows(n, fn)
}
