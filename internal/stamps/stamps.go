// Package stamps cuts fixed-size pixel windows around detected point
// sources for downstream photometry.
package stamps

import (
	"fmt"
	"time"

	"platesolver/internal/catalog"
	"platesolver/internal/fits"
)

// DefaultSize is the default stamp side length in pixels.
const DefaultSize = 10

// Record is one stamp: a flattened square pixel window around one
// source in one observation.
type Record struct {
	ImageID string
	PICID   int64
	ObsTime time.Time
	RA      float64
	Dec     float64
	XPos    float64
	YPos    float64
	Data    []float32
}

// Extract cuts one stamp per source from the full frame. Sources
// whose window would leave the frame are skipped; the skipped count
// is returned so callers can surface it. Windows are aligned to the
// 2x2 superpixel grid so every stamp starts on the same Bayer phase.
func Extract(sources []catalog.PointSource, frame *fits.Frame, size int) ([]Record, int, error) {
	if frame == nil || len(frame.Pix) == 0 {
		return nil, 0, fmt.Errorf("stamps: empty frame")
	}
	if size <= 0 {
		size = DefaultSize
	}
	if size%2 != 0 {
		// Superpixel alignment needs an even side.
		size++
	}

	records := make([]Record, 0, len(sources))
	skipped := 0
	for _, src := range sources {
		data, ok := cut(frame, src.X, src.Y, size)
		if !ok {
			skipped++
			continue
		}
		records = append(records, Record{
			ImageID: src.ImageID,
			PICID:   src.PICID,
			ObsTime: src.ObsTime,
			RA:      src.RA,
			Dec:     src.Dec,
			XPos:    src.X,
			YPos:    src.Y,
			Data:    data,
		})
	}
	return records, skipped, nil
}

// cut slices a size x size window centered on (x, y), snapping the
// window start down to an even row and column. FITS pixel coordinates
// are 1-based; the returned data is row-major.
func cut(frame *fits.Frame, x, y float64, size int) ([]float32, bool) {
	x0 := int(x+0.5) - 1 - size/2
	y0 := int(y+0.5) - 1 - size/2
	x0 -= x0 & 1
	y0 -= y0 & 1

	if x0 < 0 || y0 < 0 || x0+size > frame.Width || y0+size > frame.Height {
		return nil, false
	}

	data := make([]float32, 0, size*size)
	for row := y0; row < y0+size; row++ {
		start := row*frame.Width + x0
		data = append(data, frame.Pix[start:start+size]...)
	}
	return data, true
}
