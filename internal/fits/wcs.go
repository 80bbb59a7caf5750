package fits

import "math"

// WCS is a TAN (gnomonic) world coordinate solution as written by
// astrometry.net: reference sky position CRVAL, reference pixel
// CRPIX, and the CD linear transform in degrees per pixel.
type WCS struct {
	CRVal1, CRVal2 float64
	CRPix1, CRPix2 float64
	CD11, CD12     float64
	CD21, CD22     float64
}

const degToRad = math.Pi / 180

// PixelToSky maps a pixel position to (ra, dec) in degrees. Pixel
// coordinates follow the FITS convention where the first pixel center
// is (1, 1).
func (w *WCS) PixelToSky(x, y float64) (ra, dec float64) {
	dx := x - w.CRPix1
	dy := y - w.CRPix2
	xi := (w.CD11*dx + w.CD12*dy) * degToRad
	eta := (w.CD21*dx + w.CD22*dy) * degToRad

	ra0 := w.CRVal1 * degToRad
	dec0 := w.CRVal2 * degToRad

	den := math.Cos(dec0) - eta*math.Sin(dec0)
	ra = ra0 + math.Atan2(xi, den)
	dec = math.Atan2(math.Sin(dec0)+eta*math.Cos(dec0), math.Hypot(xi, den))

	ra /= degToRad
	if ra < 0 {
		ra += 360
	} else if ra >= 360 {
		ra -= 360
	}
	return ra, dec / degToRad
}

// SkyToPixel maps (ra, dec) in degrees to a pixel position. The
// second return is false when the position is more than 90 degrees
// from the tangent point and has no valid projection.
func (w *WCS) SkyToPixel(ra, dec float64) (x, y float64, ok bool) {
	ra0 := w.CRVal1 * degToRad
	dec0 := w.CRVal2 * degToRad
	a := ra * degToRad
	d := dec * degToRad

	den := math.Sin(d)*math.Sin(dec0) + math.Cos(d)*math.Cos(dec0)*math.Cos(a-ra0)
	if den <= 0 {
		return 0, 0, false
	}
	xi := math.Cos(d) * math.Sin(a-ra0) / den / degToRad
	eta := (math.Sin(d)*math.Cos(dec0) - math.Cos(d)*math.Sin(dec0)*math.Cos(a-ra0)) / den / degToRad

	det := w.CD11*w.CD22 - w.CD12*w.CD21
	if det == 0 {
		return 0, 0, false
	}
	dx := (w.CD22*xi - w.CD12*eta) / det
	dy := (w.CD11*eta - w.CD21*xi) / det
	return w.CRPix1 + dx, w.CRPix2 + dy, true
}

// PixelScale returns the mean plate scale in degrees per pixel.
func (w *WCS) PixelScale() float64 {
	det := w.CD11*w.CD22 - w.CD12*w.CD21
	return math.Sqrt(math.Abs(det))
}

// FieldRadius returns the angular radius in degrees of a frame with
// the given pixel dimensions, measured from the frame center to a
// corner.
func (w *WCS) FieldRadius(width, height int) float64 {
	return w.PixelScale() * math.Hypot(float64(width), float64(height)) / 2
}
