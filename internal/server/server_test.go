package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"platesolver/internal/metadb"
	"platesolver/internal/pipeline"
)

type stubHistory struct {
	results []metadb.JobResult
	err     error
}

func (s *stubHistory) RecentResults(limit int) ([]metadb.JobResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.results) {
		return s.results[:limit], nil
	}
	return s.results, nil
}

type stubFeed struct{}

func (stubFeed) Subscribe() (<-chan pipeline.Result, func()) {
	ch := make(chan pipeline.Result)
	close(ch)
	return ch, func() {}
}

func TestHandleHealth(t *testing.T) {
	s := &Server{log: nil}
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleJobsReturnsRecent(t *testing.T) {
	history := &stubHistory{results: []metadb.JobResult{
		{ObjectKey: "a/b/c/d/e.fits.fz", Status: "sources_extracted", SourceCount: 3, CreatedAt: time.Now()},
		{ObjectKey: "a/b/c/d/f.fits.fz", Status: "unsolved", CreatedAt: time.Now()},
	}}
	s := &Server{history: history, feed: stubFeed{}}

	rec := httptest.NewRecorder()
	s.handleJobs(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out []metadb.JobResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.Equal(t, "sources_extracted", out[0].Status)
}

func TestHandleJobsLimit(t *testing.T) {
	history := &stubHistory{results: []metadb.JobResult{
		{ObjectKey: "1"}, {ObjectKey: "2"}, {ObjectKey: "3"},
	}}
	s := &Server{history: history}

	rec := httptest.NewRecorder()
	s.handleJobs(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?limit=2", nil))

	var out []metadb.JobResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
}
