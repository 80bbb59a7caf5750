package pipeline

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"platesolver/internal/catalog"
	"platesolver/internal/stamps"
)

const obstimeLayout = "2006-01-02 15:04:05"

// writeSourcesCSV serializes the annotated point source set. Every
// row carries the full denormalized identifiers so downstream
// consumers need no joins.
func writeSourcesCSV(w io.Writer, sources []catalog.PointSource) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"picid", "ra", "dec", "x", "y", "vmag",
		"obstime", "exptime", "airmass", "file", "sequence_id", "image_id",
	}); err != nil {
		return err
	}
	for _, s := range sources {
		record := []string{
			strconv.FormatInt(s.PICID, 10),
			formatFloat(s.RA),
			formatFloat(s.Dec),
			formatFloat(s.X),
			formatFloat(s.Y),
			formatFloat(s.VMag),
			s.ObsTime.UTC().Format(obstimeLayout),
			formatFloat(s.Exptime),
			formatFloat(s.Airmass),
			s.File,
			s.SequenceID,
			s.ImageID,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeStampsCSV serializes the stamp set; the pixel vector is a
// space-separated list in one column.
func writeStampsCSV(w io.Writer, records []stamps.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"image_id", "picid", "obstime", "ra", "dec", "x_pos", "y_pos", "data",
	}); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.ImageID,
			strconv.FormatInt(r.PICID, 10),
			r.ObsTime.UTC().Format(obstimeLayout),
			formatFloat(r.RA),
			formatFloat(r.Dec),
			formatFloat(r.XPos),
			formatFloat(r.YPos),
			formatPixels(r.Data),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPixels(data []float32) string {
	parts := make([]string, len(data))
	for i, v := range data {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return strings.Join(parts, " ")
}
