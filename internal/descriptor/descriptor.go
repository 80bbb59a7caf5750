package descriptor

import (
	"fmt"
	"strings"
	"time"
)

// Descriptor identifies one unit of work. It is derived entirely from
// the objectKey carried by the queue message, which has the shape
// unit/field/camera/sequence/file (e.g.
// PAN001/M42/14d3bd/20220101T000000/20220101T000045.fits.fz).
type Descriptor struct {
	ObjectKey string

	UnitID       string
	Field        string
	CameraID     string
	SequenceTime string
	FileName     string

	// ImageTime is the file name up to its first dot; it doubles as
	// the observation timestamp in the artifact keys.
	ImageTime string

	SequenceID string
	ImageID    string
}

const timeLayout = "20060102T150405"

// Parse decomposes an objectKey into its five path segments and the
// derived sequence and image identifiers. Keys that do not split into
// exactly five segments are rejected before any I/O happens.
func Parse(objectKey string) (*Descriptor, error) {
	parts := strings.Split(objectKey, "/")
	if len(parts) != 5 {
		return nil, fmt.Errorf("object key %q: want 5 path segments, got %d", objectKey, len(parts))
	}
	for i, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("object key %q: empty segment at position %d", objectKey, i)
		}
	}

	d := &Descriptor{
		ObjectKey:    objectKey,
		UnitID:       parts[0],
		Field:        parts[1],
		CameraID:     parts[2],
		SequenceTime: parts[3],
		FileName:     parts[4],
	}
	d.ImageTime = strings.SplitN(d.FileName, ".", 2)[0]
	d.SequenceID = fmt.Sprintf("%s_%s_%s", d.UnitID, d.CameraID, d.SequenceTime)
	d.ImageID = fmt.Sprintf("%s_%s_%s", d.UnitID, d.CameraID, d.ImageTime)
	return d, nil
}

// ObservationTime parses the image timestamp embedded in the file
// name. The start of exposure is taken from the file name rather than
// a header card so that the timestamp is available for unsolved
// frames too.
func (d *Descriptor) ObservationTime() (time.Time, error) {
	t, err := time.Parse(timeLayout, d.ImageTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("image time %q: %w", d.ImageTime, err)
	}
	return t, nil
}

// StampsKey returns the artifact key for the stamp set CSV.
func (d *Descriptor) StampsKey() string {
	return fmt.Sprintf("%s/%s/%s/%s/stamps-%s.csv", d.UnitID, d.Field, d.CameraID, d.SequenceTime, d.ImageTime)
}

// SourcesKey returns the artifact key for the point source CSV.
func (d *Descriptor) SourcesKey() string {
	return fmt.Sprintf("%s/%s/%s/%s/sources-%s.csv", d.UnitID, d.Field, d.CameraID, d.SequenceTime, d.ImageTime)
}

// ScratchName flattens the objectKey into a file name usable inside
// the job's scratch directory.
func (d *Descriptor) ScratchName() string {
	return strings.ReplaceAll(d.ObjectKey, "/", "_")
}
