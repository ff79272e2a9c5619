package fieldviz

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"golang.org/x/image/draw"
)

// Export errors. Export failure is reported to the caller and never
// tears down the session.
var (
	// ErrExportEncode is returned when PNG encoding or the file write
	// fails.
	ErrExportEncode = errors.New("fieldviz: export encode failed")

	// ErrExportCanvas is returned when the canvas snapshot is empty or
	// malformed.
	ErrExportCanvas = errors.New("fieldviz: export canvas invalid")
)

// canvasImage converts one canvas snapshot to an 8-bit RGBA image. The
// texels are RGBA float32 values in display units [0, DisplayMax];
// out-of-range values clamp, so degenerate fields still encode.
func canvasImage(texels []float32, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrExportCanvas, width, height)
	}
	if len(texels) != width*height*4 {
		return nil, fmt.Errorf("%w: %d texel values for %dx%d", ErrExportCanvas, len(texels), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		px := img.Pix[i*4 : i*4+4]
		px[0] = displayByte(texels[i*4+0])
		px[1] = displayByte(texels[i*4+1])
		px[2] = displayByte(texels[i*4+2])
		px[3] = 0xFF
	}
	return img, nil
}

func displayByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= DisplayMax {
		return 0xFF
	}
	return uint8(v + 0.5)
}

// downscale resamples the supersampled canvas image to the target
// dimensions with a Catmull-Rom kernel. A no-op when the sizes already
// match.
func downscale(src *image.RGBA, width, height int) *image.RGBA {
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// exportFilename builds the timestamped output name for a capture.
func exportFilename(prefix string, at time.Time) string {
	return fmt.Sprintf("%s_%d.png", prefix, at.UnixMilli())
}

// writePNG encodes img into a file named after prefix and the current
// time, returning the path written.
func writePNG(img image.Image, prefix string) (string, error) {
	name := exportFilename(prefix, time.Now())
	f, err := os.Create(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExportEncode, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("%w: %v", ErrExportEncode, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExportEncode, err)
	}
	return name, nil
}
