package descriptor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDerivesIdentifiers(t *testing.T) {
	d, err := Parse("PAN001/M42/14d3bd/20220101T000000/20220101T000045.fits.fz")
	require.NoError(t, err)

	require.Equal(t, "PAN001", d.UnitID)
	require.Equal(t, "M42", d.Field)
	require.Equal(t, "14d3bd", d.CameraID)
	require.Equal(t, "20220101T000000", d.SequenceTime)
	require.Equal(t, "20220101T000045.fits.fz", d.FileName)
	require.Equal(t, "20220101T000045", d.ImageTime)
	require.Equal(t, "PAN001_14d3bd_20220101T000000", d.SequenceID)
	require.Equal(t, "PAN001_14d3bd_20220101T000045", d.ImageID)
}

func TestParseIsDeterministic(t *testing.T) {
	key := "PAN012/Wasp-35/ee04d1/20191015T060203/20191015T060302.fits.fz"
	a, err := Parse(key)
	require.NoError(t, err)
	b, err := Parse(key)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestParseRejectsMalformedKeys(t *testing.T) {
	for _, key := range []string{
		"",
		"PAN001",
		"PAN001/M42/14d3bd/20220101T000000",
		"PAN001/M42/14d3bd/20220101T000000/extra/file.fits.fz",
		"PAN001//14d3bd/20220101T000000/file.fits.fz",
	} {
		_, err := Parse(key)
		require.Error(t, err, "key %q", key)
	}
}

func TestObservationTime(t *testing.T) {
	d, err := Parse("PAN001/M42/14d3bd/20220101T000000/20220101T000045.fits.fz")
	require.NoError(t, err)

	ts, err := d.ObservationTime()
	require.NoError(t, err)
	require.Equal(t, time.Date(2022, 1, 1, 0, 0, 45, 0, time.UTC), ts)
}

func TestArtifactKeys(t *testing.T) {
	d, err := Parse("PAN001/M42/14d3bd/20220101T000000/20220101T000045.fits.fz")
	require.NoError(t, err)

	require.Equal(t, "PAN001/M42/14d3bd/20220101T000000/stamps-20220101T000045.csv", d.StampsKey())
	require.Equal(t, "PAN001/M42/14d3bd/20220101T000000/sources-20220101T000045.csv", d.SourcesKey())
	require.Equal(t, "PAN001_M42_14d3bd_20220101T000000_20220101T000045.fits.fz", d.ScratchName())
}
