package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"platesolver/internal/metadb"
	"platesolver/internal/queue"
)

type fakeMessage struct {
	attrs map[string]string
	mu    sync.Mutex
	acks  int
}

func (m *fakeMessage) Attributes() map[string]string { return m.attrs }
func (m *fakeMessage) Ack() {
	m.mu.Lock()
	m.acks++
	m.mu.Unlock()
}

type fakeRecorder struct {
	results []metadb.JobResult
}

func (r *fakeRecorder) RecordResult(res metadb.JobResult) bool {
	r.results = append(r.results, res)
	return true
}

func newTestWorker(t *testing.T, rig *testRig, rec *fakeRecorder) *Worker {
	t.Helper()
	w := &Worker{
		pipe: rig.pipe,
		log:  slog.Default(),
		subs: make(map[int]chan Result),
	}
	w.resources = func() (*JobStores, error) {
		return &JobStores{
			Lookup:   rig.lookup,
			Meta:     rig.meta,
			Recorder: rec,
			Close:    func() {},
		}, nil
	}
	return w
}

func TestWorkerAcksExactlyOnceOnSuccess(t *testing.T) {
	rig := newTestRig(t)
	rec := &fakeRecorder{}
	w := newTestWorker(t, rig, rec)

	results, unsub := w.Subscribe()
	defer unsub()

	msg := &fakeMessage{attrs: map[string]string{"filename": testKey}}
	w.Handle(context.Background(), msg)

	require.Equal(t, 1, msg.acks)
	require.Len(t, rec.results, 1)
	require.Equal(t, "sources_extracted", rec.results[0].Status)

	res := <-results
	require.Equal(t, StatusExtracted, res.Status)
	require.Equal(t, testKey, res.ObjectKey)
}

func TestWorkerSkipsPointingFrames(t *testing.T) {
	rig := newTestRig(t)
	rec := &fakeRecorder{}
	w := newTestWorker(t, rig, rec)
	factoryCalled := false
	inner := w.resources
	w.resources = func() (*JobStores, error) {
		factoryCalled = true
		return inner()
	}

	results, unsub := w.Subscribe()
	defer unsub()

	msg := &fakeMessage{attrs: map[string]string{
		"filename": "PAN001/M42/14d3bd/20220101T000000/pointing00.fits.fz",
	}}
	w.Handle(context.Background(), msg)

	require.Equal(t, 1, msg.acks)
	require.False(t, factoryCalled, "pointing frames never open job resources")
	require.Empty(t, rig.store.fetches)
	require.Empty(t, rig.solver.calls)

	res := <-results
	require.Equal(t, StatusSkipped, res.Status)
}

func TestWorkerAcksOnPipelineError(t *testing.T) {
	rig := newTestRig(t)
	rig.store.notFound = true
	rec := &fakeRecorder{}
	w := newTestWorker(t, rig, rec)

	msg := &fakeMessage{attrs: map[string]string{"filename": testKey}}
	w.Handle(context.Background(), msg)

	require.Equal(t, 1, msg.acks)
	require.Len(t, rec.results, 1)
	require.Equal(t, "error", rec.results[0].Status)
	require.NotEmpty(t, rec.results[0].Error)
}

func TestWorkerRecoversPanicAsError(t *testing.T) {
	rig := newTestRig(t)
	rig.lookup.panicMsg = "catalog exploded"
	rec := &fakeRecorder{}
	w := newTestWorker(t, rig, rec)

	msg := &fakeMessage{attrs: map[string]string{"filename": testKey}}
	require.NotPanics(t, func() { w.Handle(context.Background(), msg) })

	require.Equal(t, 1, msg.acks)
	require.Len(t, rec.results, 1)
	require.Equal(t, "error", rec.results[0].Status)
	require.Contains(t, rec.results[0].Error, "catalog exploded")
	rig.assertScratchEmpty(t)
}

func TestWorkerAcksOnResourceFailure(t *testing.T) {
	rig := newTestRig(t)
	w := newTestWorker(t, rig, nil)
	w.resources = func() (*JobStores, error) {
		return nil, fmt.Errorf("database down")
	}

	results, unsub := w.Subscribe()
	defer unsub()

	msg := &fakeMessage{attrs: map[string]string{"filename": testKey}}
	w.Handle(context.Background(), msg)

	require.Equal(t, 1, msg.acks)
	res := <-results
	require.Equal(t, StatusError, res.Status)
}

func TestWorkerDropsMessagesWithoutFilename(t *testing.T) {
	rig := newTestRig(t)
	w := newTestWorker(t, rig, &fakeRecorder{})

	results, unsub := w.Subscribe()
	defer unsub()

	msg := &fakeMessage{attrs: map[string]string{}}
	w.Handle(context.Background(), msg)

	require.Equal(t, 1, msg.acks, "malformed messages are still acked")
	require.Empty(t, results)
}

func TestWorkerRunConsumesSource(t *testing.T) {
	rig := newTestRig(t)
	rec := &fakeRecorder{}
	w := newTestWorker(t, rig, rec)

	src := &stubSource{messages: []*fakeMessage{
		{attrs: map[string]string{"filename": testKey}},
	}}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := w.Run(ctx, src)
	require.NoError(t, err)
	require.Len(t, rec.results, 1)
	require.Equal(t, 1, src.messages[0].acks)
}

// stubSource delivers its messages sequentially then returns.
type stubSource struct {
	messages []*fakeMessage
}

func (s *stubSource) Receive(ctx context.Context, h queue.Handler) error {
	for _, m := range s.messages {
		h(ctx, m)
	}
	return nil
}
