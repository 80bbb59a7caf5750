// Package pipeline runs the per-job processing sequence: download,
// solve, source lookup, stamp extraction, artifact persistence, and
// the cleanup discipline wrapping all of it.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"platesolver/internal/catalog"
	"platesolver/internal/descriptor"
	"platesolver/internal/fits"
	"platesolver/internal/solver"
	"platesolver/internal/stamps"
	"platesolver/internal/storage"
)

// Solver is the external plate-solving toolchain.
type Solver interface {
	WCSInfo(ctx context.Context, path string) (map[string]string, error)
	Solve(ctx context.Context, path string, opts solver.SolveOptions) (*solver.Solution, error)
	Unpack(ctx context.Context, path string) (string, error)
	Pack(ctx context.Context, path string) (string, error)
}

// FrameReader extracts header cards and pixel data from local FITS
// files.
type FrameReader interface {
	ReadHeader(path string) (*fits.Header, error)
	ReadFrame(path string) (*fits.Frame, error)
}

// SourceLookup is a per-job catalog connection.
type SourceLookup interface {
	Lookup(ctx context.Context, wcs *fits.WCS, width, height int, fresh bool) ([]catalog.PointSource, error)
}

// MetadataSink is a per-job metadata connection. Upsert never fails a
// job; it logs and reports false.
type MetadataSink interface {
	Upsert(table string, fields map[string]any) bool
}

// Pipeline executes jobs. All collaborators are injected; the
// pipeline holds no global state and one instance may serve
// successive jobs (never concurrent ones, the queue guarantees a
// single in-flight message).
type Pipeline struct {
	store       storage.ObjectStore
	solver      Solver
	frames      FrameReader
	log         *slog.Logger
	scratchRoot string
	stampSize   int
	solveOpts   solver.SolveOptions
}

// New constructs a Pipeline.
func New(store storage.ObjectStore, sv Solver, frames FrameReader, log *slog.Logger, scratchRoot string, stampSize int, solveOpts solver.SolveOptions) *Pipeline {
	if stampSize <= 0 {
		stampSize = stamps.DefaultSize
	}
	if scratchRoot == "" {
		scratchRoot = os.TempDir()
	}
	return &Pipeline{
		store:       store,
		solver:      sv,
		frames:      frames,
		log:         log,
		scratchRoot: scratchRoot,
		stampSize:   stampSize,
		solveOpts:   solveOpts,
	}
}

// Run processes one objectKey to a terminal status. Every local file
// lives in a job-scoped scratch directory removed on every exit path;
// removal tolerates files that never materialized.
func (p *Pipeline) Run(ctx context.Context, objectKey string, lookup SourceLookup, meta MetadataSink) Result {
	start := time.Now()
	res := Result{ObjectKey: objectKey, Status: StatusError}
	defer func() { res.Duration = time.Since(start) }()

	// Step 1: decompose the key before any I/O.
	desc, err := descriptor.Parse(objectKey)
	if err != nil {
		res.Err = err
		return res
	}

	scratch := filepath.Join(p.scratchRoot, "solve-"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		res.Err = fmt.Errorf("scratch dir: %w", err)
		return res
	}
	defer p.cleanup(scratch)

	// Step 2: download the compressed image.
	p.log.Info("downloading", "object_key", objectKey)
	fzPath := filepath.Join(scratch, desc.ScratchName())
	data, err := p.store.Fetch(ctx, objectKey)
	if err != nil {
		res.Err = fmt.Errorf("download: %w", err)
		return res
	}
	if err := os.WriteFile(fzPath, data, 0o644); err != nil {
		res.Err = fmt.Errorf("write scratch: %w", err)
		return res
	}

	// Step 3: inspect existing WCS records. More than one record
	// means the image was solved in a prior run; that only matters
	// for the re-upload decision in step 9.
	wcsInfo, err := p.solver.WCSInfo(ctx, fzPath)
	if err != nil {
		res.Err = fmt.Errorf("wcsinfo: %w", err)
		return res
	}
	previouslySolved := len(wcsInfo) > 1
	if previouslySolved {
		p.log.Info("existing solution found", "object_key", objectKey)
	}

	// Step 4: unpack to a plain FITS file.
	fitsPath, err := p.solver.Unpack(ctx, fzPath)
	if err != nil {
		res.Err = fmt.Errorf("unpack: %w", err)
		return res
	}
	res.Filename = filepath.Base(fitsPath)

	// Step 5: solve. Failure or timeout here is an expected outcome,
	// not a pipeline fault.
	p.log.Info("plate-solving", "file", fitsPath)
	_, solveErr := p.solver.Solve(ctx, fitsPath, p.solveOpts)
	res.Solved = solveErr == nil

	// Step 6: header values and true mid-exposure time. Runs for
	// both solved and unsolved frames.
	hdr, err := p.frames.ReadHeader(fitsPath)
	if err != nil {
		res.Err = fmt.Errorf("header: %w", err)
		return res
	}
	obsStart, err := desc.ObservationTime()
	if err != nil {
		res.Err = err
		return res
	}
	obsTime := obsStart.Add(time.Duration(hdr.Exptime * float64(time.Second) / 2))

	if !res.Solved {
		p.log.Info("file not solved, skipping", "file", fitsPath, "error", solveErr)
		res.Status = StatusUnsolved
		return res
	}

	// The solve rewrote the header; reread it for the fresh WCS.
	hdr, err = p.frames.ReadHeader(fitsPath)
	if err != nil {
		res.Err = fmt.Errorf("solved header: %w", err)
		return res
	}
	if hdr.WCS == nil {
		res.Err = fmt.Errorf("solved image %s has no WCS cards", fitsPath)
		return res
	}

	// Step 7: frame pixels, then catalog sources over the solved
	// footprint. The lookup is always fresh, never cached.
	frame, err := p.frames.ReadFrame(fitsPath)
	if err != nil {
		res.Err = fmt.Errorf("frame: %w", err)
		return res
	}
	sources, err := lookup.Lookup(ctx, hdr.WCS, frame.Width, frame.Height, true)
	if err != nil {
		res.Err = fmt.Errorf("source lookup: %w", err)
		return res
	}
	for i := range sources {
		sources[i].ObsTime = obsTime
		sources[i].Exptime = hdr.Exptime
		sources[i].Airmass = hdr.Airmass
		sources[i].File = desc.FileName
		sources[i].SequenceID = desc.SequenceID
		sources[i].ImageID = desc.ImageID
	}
	res.SourceCount = len(sources)
	p.log.Info("sources found", "file", fitsPath, "count", len(sources))

	// Step 8: stamps.
	stampSet, skipped, err := stamps.Extract(sources, frame, p.stampSize)
	if err != nil {
		res.Err = fmt.Errorf("stamps: %w", err)
		return res
	}
	if skipped > 0 {
		p.log.Warn("sources skipped near frame edge", "file", fitsPath, "skipped", skipped)
	}
	res.StampCount = len(stampSet)
	res.Skipped = skipped

	// Step 9: persist artifacts. The stamp set must land; a failed
	// sources CSV degrades the result instead of failing the job.
	var buf bytes.Buffer
	if err := writeStampsCSV(&buf, stampSet); err != nil {
		res.Err = fmt.Errorf("stamps csv: %w", err)
		return res
	}
	if err := p.store.Store(ctx, desc.StampsKey(), buf.Bytes()); err != nil {
		res.Err = fmt.Errorf("stamps upload: %w", err)
		return res
	}

	res.Status = StatusExtracted
	buf.Reset()
	if err := writeSourcesCSV(&buf, sources); err != nil {
		p.log.Warn("problem creating sources csv", "error", err)
		res.Status = StatusExtractedPartial
	} else if err := p.store.Store(ctx, desc.SourcesKey(), buf.Bytes()); err != nil {
		p.log.Warn("problem uploading sources csv", "error", err)
		res.Status = StatusExtractedPartial
	}

	// Re-upload the solved image only when this run produced the
	// first solution (a lone WCS record meant none existed before).
	if !previouslySolved {
		packed, err := p.solver.Pack(ctx, fitsPath)
		if err != nil {
			res.Err = fmt.Errorf("fpack: %w", err)
			res.Status = StatusError
			return res
		}
		solved, err := os.ReadFile(packed)
		if err != nil {
			res.Err = fmt.Errorf("read packed: %w", err)
			res.Status = StatusError
			return res
		}
		if err := p.store.Store(ctx, objectKey, solved); err != nil {
			res.Err = fmt.Errorf("solved upload: %w", err)
			res.Status = StatusError
			return res
		}
	}

	// Record image metadata; never fatal.
	if meta != nil {
		meta.Upsert("images", map[string]any{
			"id":           desc.ImageID,
			"sequence_id":  desc.SequenceID,
			"file":         desc.FileName,
			"status":       string(res.Status),
			"solved":       res.Solved,
			"source_count": res.SourceCount,
			"obstime":      obsTime.UTC().Format("2006-01-02 15:04:05"),
			"exptime":      hdr.Exptime,
			"airmass":      hdr.Airmass,
		})
	}

	return res
}

// cleanup is the single place scratch files are removed. RemoveAll
// tolerates paths that never materialized, so cleanup is idempotent.
func (p *Pipeline) cleanup(scratch string) {
	if err := os.RemoveAll(scratch); err != nil {
		p.log.Warn("scratch cleanup failed", "dir", scratch, "error", err)
	}
}
