// Package solver wraps the astrometry.net toolchain: solve-field for
// plate solving, wcsinfo for solution inspection, and funpack/fpack
// for FITS tile compression. Every operation is a bounded subprocess.
package solver

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// SolveOptions bound one solve-field invocation.
type SolveOptions struct {
	Timeout   time.Duration
	Overwrite bool
	// Downsample factor passed to solve-field; 0 leaves the tool
	// default in place.
	Downsample int
	ExtraArgs  []string
}

// Solution summarizes a successful solve.
type Solution struct {
	Tool     string
	Output   string
	Duration time.Duration
}

// Astrometry invokes the astrometry.net binaries on local files.
type Astrometry struct{}

// WCSInfo runs wcsinfo against path and returns its key/value output.
// An image that has never been solved yields a single record (the
// file name); more than one record means a solution is present.
func (Astrometry) WCSInfo(ctx context.Context, path string) (map[string]string, error) {
	cmd := exec.CommandContext(ctx, "wcsinfo", path)
	out, err := cmd.Output()
	info := map[string]string{"wcs_file": path}
	if err != nil {
		// wcsinfo exits non-zero for unsolved images; that is a
		// normal answer, not a failure.
		return info, nil
	}
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		fields := strings.SplitN(strings.TrimSpace(sc.Text()), " ", 2)
		if len(fields) != 2 {
			continue
		}
		info[fields[0]] = strings.TrimSpace(fields[1])
	}
	return info, nil
}

// Solve runs solve-field against the plain FITS file at path. The
// solved file replaces path in place (solve-field --new-fits). Any
// failure, including the timeout, is returned as an error; callers
// classify it as an expected unsolved outcome.
func (Astrometry) Solve(ctx context.Context, path string, opts SolveOptions) (*Solution, error) {
	start := time.Now()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := []string{
		"--guess-scale",
		"--no-plots",
		"--new-fits", path,
		"--dir", filepath.Dir(path),
		"--cpulimit", fmt.Sprintf("%d", int(opts.Timeout.Seconds())),
	}
	if opts.Overwrite {
		args = append(args, "--overwrite")
	}
	if opts.Downsample > 0 {
		args = append(args, "--downsample", fmt.Sprintf("%d", opts.Downsample))
	}
	args = append(args, opts.ExtraArgs...)
	args = append(args, path)

	cmd := exec.CommandContext(ctx, "solve-field", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("solve-field %s: %w: %s", path, err, tail(out))
	}
	if strings.Contains(string(out), "Did not solve") {
		return nil, fmt.Errorf("solve-field %s: field did not solve", path)
	}
	return &Solution{Tool: "solve-field", Output: string(out), Duration: time.Since(start)}, nil
}

// Unpack funpacks a .fz file next to itself and returns the plain
// FITS path.
func (Astrometry) Unpack(ctx context.Context, path string) (string, error) {
	out := strings.TrimSuffix(path, ".fz")
	if out == path {
		out = path + ".fits"
	}
	cmd := exec.CommandContext(ctx, "funpack", "-O", out, path)
	if b, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("funpack %s: %w: %s", path, err, tail(b))
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("funpack %s: output %s missing", path, out)
	}
	return out, nil
}

// Pack fpacks a plain FITS file next to itself and returns the .fz
// path.
func (Astrometry) Pack(ctx context.Context, path string) (string, error) {
	out := path + ".fz"
	// fpack refuses to overwrite; the packed file may survive a
	// previous attempt in the same scratch dir.
	os.Remove(out)
	cmd := exec.CommandContext(ctx, "fpack", path)
	if b, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("fpack %s: %w: %s", path, err, tail(b))
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("fpack %s: output %s missing", path, out)
	}
	return out, nil
}

func tail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > 400 {
		s = "..." + s[len(s)-400:]
	}
	return s
}
