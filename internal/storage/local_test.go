package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStoreFetchRoundTrip(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	key := "PAN001/M42/14d3bd/20220101T000000/20220101T000045.fits.fz"

	require.NoError(t, s.Store(ctx, key, []byte("payload")))
	data, err := s.Fetch(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)

	// Overwrite is idempotent.
	require.NoError(t, s.Store(ctx, key, []byte("payload2")))
	data, err = s.Fetch(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("payload2"), data)
}

func TestLocalFetchMissingKey(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), "no/such/key.fits")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), "../outside")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)

	require.Error(t, s.Store(context.Background(), "/abs/path", nil))
}
