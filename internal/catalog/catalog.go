// Package catalog looks up calibrated point sources for a solved
// image from a local star-catalog database.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"platesolver/internal/fits"
)

// PointSource is one detected source row. Position is carried both in
// pixels and on the sky; the trailing fields are annotated uniformly
// by the pipeline so downstream consumers need no joins.
type PointSource struct {
	PICID int64
	RA    float64
	Dec   float64
	X     float64
	Y     float64
	VMag  float64

	ObsTime    time.Time
	Exptime    float64
	Airmass    float64
	File       string
	SequenceID string
	ImageID    string
}

// Catalog is a per-job connection to the star-catalog database. It is
// opened by the worker before a job and closed when the job ends,
// never shared between jobs.
type Catalog struct {
	db *sql.DB

	mu    sync.Mutex
	cache map[string][]PointSource
}

// Open opens the catalog database at path.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Catalog{db: db, cache: make(map[string][]PointSource)}, nil
}

// Close closes the underlying connection.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Init creates the catalog schema. Used by local setups and tests;
// production catalogs ship pre-built.
func (c *Catalog) Init() error {
	if _, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS catalog (
        picid INTEGER PRIMARY KEY,
        ra REAL NOT NULL,
        dec REAL NOT NULL,
        vmag REAL
    );`); err != nil {
		return err
	}
	_, err := c.db.Exec(`CREATE INDEX IF NOT EXISTS idx_catalog_dec ON catalog(dec);`)
	return err
}

// Add inserts one catalog star. Used by local setups and tests.
func (c *Catalog) Add(picid int64, ra, dec, vmag float64) error {
	_, err := c.db.Exec(`INSERT OR REPLACE INTO catalog (picid, ra, dec, vmag) VALUES (?, ?, ?, ?);`,
		picid, ra, dec, vmag)
	return err
}

// Lookup returns every catalog star that falls inside the solved
// frame described by wcs, with pixel positions computed from the
// solution. fresh forces a database query even when the same field
// was looked up earlier on this connection.
func (c *Catalog) Lookup(ctx context.Context, wcs *fits.WCS, width, height int, fresh bool) ([]PointSource, error) {
	if wcs == nil {
		return nil, fmt.Errorf("catalog lookup requires a WCS solution")
	}

	key := fmt.Sprintf("%.6f_%.6f_%dx%d", wcs.CRVal1, wcs.CRVal2, width, height)
	if !fresh {
		c.mu.Lock()
		cached, ok := c.cache[key]
		c.mu.Unlock()
		if ok {
			return cached, nil
		}
	}

	radius := wcs.FieldRadius(width, height)
	candidates, err := c.cone(ctx, wcs.CRVal1, wcs.CRVal2, radius)
	if err != nil {
		return nil, err
	}

	sources := make([]PointSource, 0, len(candidates))
	for _, s := range candidates {
		x, y, ok := wcs.SkyToPixel(s.RA, s.Dec)
		if !ok || x < 1 || y < 1 || x > float64(width) || y > float64(height) {
			continue
		}
		s.X, s.Y = x, y
		sources = append(sources, s)
	}

	c.mu.Lock()
	c.cache[key] = sources
	c.mu.Unlock()
	return sources, nil
}

// cone runs a bounding-box query around (ra0, dec0) wide enough to
// cover radius degrees, handling the RA wrap at 0/360.
func (c *Catalog) cone(ctx context.Context, ra0, dec0, radius float64) ([]PointSource, error) {
	decLo := dec0 - radius
	decHi := dec0 + radius

	cosDec := math.Cos(dec0 * math.Pi / 180)
	if cosDec < 0.05 {
		// Near the pole the RA box degenerates; take the full circle.
		return c.query(ctx, `SELECT picid, ra, dec, vmag FROM catalog WHERE dec BETWEEN ? AND ?;`, decLo, decHi)
	}

	raHalf := radius / cosDec
	raLo := ra0 - raHalf
	raHi := ra0 + raHalf
	if raLo >= 0 && raHi < 360 {
		return c.query(ctx, `SELECT picid, ra, dec, vmag FROM catalog WHERE dec BETWEEN ? AND ? AND ra BETWEEN ? AND ?;`,
			decLo, decHi, raLo, raHi)
	}
	// Box crosses RA 0: two disjoint ranges.
	return c.query(ctx, `SELECT picid, ra, dec, vmag FROM catalog WHERE dec BETWEEN ? AND ? AND (ra >= ? OR ra <= ?);`,
		decLo, decHi, math.Mod(raLo+360, 360), math.Mod(raHi, 360))
}

func (c *Catalog) query(ctx context.Context, q string, args ...any) ([]PointSource, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PointSource
	for rows.Next() {
		var s PointSource
		var vmag sql.NullFloat64
		if err := rows.Scan(&s.PICID, &s.RA, &s.Dec, &vmag); err != nil {
			return nil, err
		}
		if vmag.Valid {
			s.VMag = vmag.Float64
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
