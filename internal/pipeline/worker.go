package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"platesolver/internal/catalog"
	"platesolver/internal/logging"
	"platesolver/internal/metadb"
	"platesolver/internal/queue"
)

// pointingMarker flags non-science frames taken to verify telescope
// pointing; they are acknowledged and skipped without any pipeline
// work.
const pointingMarker = "pointing"

// ResultRecorder appends terminal job outcomes.
type ResultRecorder interface {
	RecordResult(r metadb.JobResult) bool
}

// JobStores bundles the per-job database connections. Close releases
// them; it runs unconditionally after the pipeline returns.
type JobStores struct {
	Lookup   SourceLookup
	Meta     MetadataSink
	Recorder ResultRecorder
	Close    func()
}

type storeFactory func() (*JobStores, error)

// Worker pulls one job at a time from a queue source, runs the
// pipeline, and acknowledges the message exactly once regardless of
// outcome. Redelivery policy belongs to the queue.
type Worker struct {
	pipe      *Pipeline
	log       *slog.Logger
	resources storeFactory

	mu        sync.Mutex
	subs      map[int]chan Result
	nextSubID int
}

// NewWorker creates a Worker that opens fresh catalog and metadata
// connections for every job.
func NewWorker(pipe *Pipeline, log *slog.Logger, catalogPath, metadataPath string) *Worker {
	w := &Worker{
		pipe: pipe,
		log:  log,
		subs: make(map[int]chan Result),
	}
	w.resources = func() (*JobStores, error) {
		cat, err := catalog.Open(catalogPath)
		if err != nil {
			return nil, fmt.Errorf("catalog open: %w", err)
		}
		meta, err := metadb.Open(metadataPath, log)
		if err != nil {
			cat.Close()
			return nil, fmt.Errorf("metadata open: %w", err)
		}
		return &JobStores{
			Lookup:   cat,
			Meta:     meta,
			Recorder: meta,
			Close: func() {
				cat.Close()
				meta.Close()
			},
		}, nil
	}
	return w
}

// Run blocks consuming messages until ctx is cancelled or the source
// fails.
func (w *Worker) Run(ctx context.Context, src queue.Source) error {
	return src.Receive(ctx, w.Handle)
}

// Handle processes one message. The ack is deferred before any work
// so it happens exactly once even on internal failure.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) {
	defer msg.Ack()

	objectKey := msg.Attributes()["filename"]
	if objectKey == "" {
		w.log.Warn("message without filename attribute dropped")
		return
	}

	start := time.Now()
	logging.LogJobStart(w.log, objectKey)

	res := w.process(ctx, objectKey)
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}

	if res.Status == StatusError && res.Err != nil {
		logging.LogJobError(w.log, objectKey, res.Duration, res.Err)
	} else {
		logging.LogJobDone(w.log, objectKey, string(res.Status), res.Duration, res.SourceCount)
	}
	w.broadcast(res)
}

func (w *Worker) process(ctx context.Context, objectKey string) (res Result) {
	if strings.Contains(objectKey, pointingMarker) {
		return Result{ObjectKey: objectKey, Status: StatusSkipped, Filename: objectKey}
	}

	stores, err := w.resources()
	if err != nil {
		return Result{ObjectKey: objectKey, Status: StatusError, Err: err}
	}
	defer stores.Close()

	// No fault may escape the per-job boundary; a panic anywhere in
	// the pipeline collapses to the error status.
	defer func() {
		if r := recover(); r != nil {
			res = Result{ObjectKey: objectKey, Status: StatusError, Err: fmt.Errorf("pipeline panic: %v", r)}
			w.record(stores, res)
		}
	}()

	res = w.pipe.Run(ctx, objectKey, stores.Lookup, stores.Meta)
	w.record(stores, res)
	return res
}

func (w *Worker) record(stores *JobStores, res Result) {
	if stores.Recorder == nil {
		return
	}
	errMsg := ""
	if res.Err != nil {
		errMsg = res.Err.Error()
	}
	stores.Recorder.RecordResult(metadb.JobResult{
		ObjectKey:   res.ObjectKey,
		Status:      string(res.Status),
		SourceCount: res.SourceCount,
		DurationMS:  res.Duration.Milliseconds(),
		Error:       errMsg,
	})
}

// Subscribe returns a channel receiving every job result and an
// unsubscribe function. Used by the status server.
func (w *Worker) Subscribe() (<-chan Result, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextSubID
	w.nextSubID++
	ch := make(chan Result, 8)
	w.subs[id] = ch
	unsub := func() {
		w.mu.Lock()
		if c, ok := w.subs[id]; ok {
			close(c)
			delete(w.subs, id)
		}
		w.mu.Unlock()
	}
	return ch, unsub
}

func (w *Worker) broadcast(res Result) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, ch := range w.subs {
		select {
		case ch <- res:
		default:
			w.log.Warn("result channel full", "subscriber", id, "object_key", res.ObjectKey)
		}
	}
}
