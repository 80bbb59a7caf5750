package queue

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWatchObjectKeyDerivation(t *testing.T) {
	root := t.TempDir()
	w := NewWatch(root, slog.Default())

	path := filepath.Join(root, "PAN001", "M42", "14d3bd", "20220101T000000", "20220101T000045.fits.fz")
	key, ok := w.ObjectKey(path)
	require.True(t, ok)
	require.Equal(t, "PAN001/M42/14d3bd/20220101T000000/20220101T000045.fits.fz", key)
}

func TestWatchObjectKeyRejections(t *testing.T) {
	root := t.TempDir()
	w := NewWatch(root, slog.Default())

	// Wrong extension.
	_, ok := w.ObjectKey(filepath.Join(root, "a", "b", "c", "d", "e.jpg"))
	require.False(t, ok)

	// Wrong depth.
	_, ok = w.ObjectKey(filepath.Join(root, "a", "b", "c.fits.fz"))
	require.False(t, ok)

	// Outside the root.
	_, ok = w.ObjectKey(filepath.Join(t.TempDir(), "a", "b", "c", "d", "e.fits.fz"))
	require.False(t, ok)
}
