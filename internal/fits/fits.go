// Package fits extracts the small slice of FITS content the pipeline
// needs: a handful of header cards and the full-frame pixel data.
package fits

import (
	"fmt"
	"os"

	"github.com/astrogo/fitsio"
)

// Header carries the cards the pipeline reads from an image.
type Header struct {
	Exptime float64
	Airmass float64
	WCS     *WCS // nil when the image carries no solution
}

// Frame is the full-frame pixel data as physical values (BSCALE and
// BZERO applied).
type Frame struct {
	Width  int
	Height int
	Pix    []float32
}

// At returns the pixel at column x, row y. The caller is responsible
// for bounds.
func (f *Frame) At(x, y int) float32 {
	return f.Pix[y*f.Width+x]
}

// Reader reads headers and frames from local FITS files.
type Reader struct{}

// ReadHeader reads the primary header of the file at path.
func (Reader) ReadHeader(path string) (*Header, error) {
	f, fio, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	defer fio.Close()

	hdr := fio.HDU(0).Header()
	h := &Header{
		Exptime: floatCard(hdr, "EXPTIME", 0),
		Airmass: floatCard(hdr, "AIRMASS", 0),
	}
	if wcs, ok := wcsFromHeader(hdr); ok {
		h.WCS = wcs
	}
	return h, nil
}

// ReadFrame reads the primary image data unit of the file at path.
func (Reader) ReadFrame(path string) (*Frame, error) {
	f, fio, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	defer fio.Close()

	for _, hdu := range fio.HDUs() {
		img, ok := hdu.(fitsio.Image)
		if !ok {
			continue
		}
		hdr := img.Header()
		axes := hdr.Axes()
		if len(axes) != 2 {
			continue
		}
		w, h := axes[0], axes[1]
		pix, err := readPixels(img, hdr.Bitpix(), w*h)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		scale := floatCard(hdr, "BSCALE", 1)
		zero := floatCard(hdr, "BZERO", 0)
		if scale != 1 || zero != 0 {
			for i := range pix {
				pix[i] = float32(zero + scale*float64(pix[i]))
			}
		}
		return &Frame{Width: w, Height: h, Pix: pix}, nil
	}
	return nil, fmt.Errorf("%s: no 2-dimensional image HDU", path)
}

func open(path string) (*os.File, *fitsio.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	fio, err := fitsio.Open(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, fio, nil
}

func readPixels(img fitsio.Image, bitpix, n int) ([]float32, error) {
	switch bitpix {
	case 8:
		raw := make([]int8, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		return convert(raw, func(v int8) float32 { return float32(v) }), nil
	case 16:
		raw := make([]int16, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		return convert(raw, func(v int16) float32 { return float32(v) }), nil
	case 32:
		raw := make([]int32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		return convert(raw, func(v int32) float32 { return float32(v) }), nil
	case 64:
		raw := make([]int64, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		return convert(raw, func(v int64) float32 { return float32(v) }), nil
	case -32:
		raw := make([]float32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		return raw, nil
	case -64:
		raw := make([]float64, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		return convert(raw, func(v float64) float32 { return float32(v) }), nil
	}
	return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
}

func convert[T int8 | int16 | int32 | int64 | float64](raw []T, f func(T) float32) []float32 {
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = f(v)
	}
	return out
}

func floatCard(hdr *fitsio.Header, name string, fallback float64) float64 {
	card := hdr.Get(name)
	if card == nil {
		return fallback
	}
	switch v := card.Value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

func wcsFromHeader(hdr *fitsio.Header) (*WCS, bool) {
	need := []string{"CRVAL1", "CRVAL2", "CRPIX1", "CRPIX2", "CD1_1", "CD1_2", "CD2_1", "CD2_2"}
	vals := make(map[string]float64, len(need))
	for _, name := range need {
		card := hdr.Get(name)
		if card == nil {
			return nil, false
		}
		switch v := card.Value.(type) {
		case float64:
			vals[name] = v
		case int:
			vals[name] = float64(v)
		default:
			return nil, false
		}
	}
	return &WCS{
		CRVal1: vals["CRVAL1"], CRVal2: vals["CRVAL2"],
		CRPix1: vals["CRPIX1"], CRPix2: vals["CRPIX2"],
		CD11: vals["CD1_1"], CD12: vals["CD1_2"],
		CD21: vals["CD2_1"], CD22: vals["CD2_2"],
	}, true
}
