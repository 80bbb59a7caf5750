package pipeline

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"platesolver/internal/catalog"
	"platesolver/internal/stamps"
)

func fixedObsTime() time.Time {
	return time.Date(2022, 1, 1, 0, 1, 0, 0, time.UTC)
}

func TestWriteSourcesCSVGolden(t *testing.T) {
	sources := []catalog.PointSource{
		{
			PICID: 1001, RA: 180.5, Dec: -5.25, X: 100.5, Y: 200.25, VMag: 9.5,
			ObsTime: fixedObsTime(), Exptime: 120, Airmass: 1.25,
			File:       "20220101T000000.fits.fz",
			SequenceID: "PAN001_14d3bd_20220101T000000",
			ImageID:    "PAN001_14d3bd_20220101T000000",
		},
		{
			PICID: 1002, RA: 181, Dec: -5.5, X: 50, Y: 60, VMag: 10.25,
			ObsTime: fixedObsTime(), Exptime: 120, Airmass: 1.25,
			File:       "20220101T000000.fits.fz",
			SequenceID: "PAN001_14d3bd_20220101T000000",
			ImageID:    "PAN001_14d3bd_20220101T000000",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeSourcesCSV(&buf, sources))

	g := goldie.New(t)
	g.Assert(t, "sources", buf.Bytes())
}

func TestWriteStampsCSVGolden(t *testing.T) {
	records := []stamps.Record{
		{
			ImageID: "PAN001_14d3bd_20220101T000000",
			PICID:   1001,
			ObsTime: fixedObsTime(),
			RA:      180.5, Dec: -5.25,
			XPos: 100.5, YPos: 200.25,
			Data: []float32{1, 2, 3, 4},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeStampsCSV(&buf, records))

	g := goldie.New(t)
	g.Assert(t, "stamps", buf.Bytes())
}

func TestWriteSourcesCSVEmptySet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSourcesCSV(&buf, nil))
	require.Equal(t, "picid,ra,dec,x,y,vmag,obstime,exptime,airmass,file,sequence_id,image_id\n", buf.String())
}
