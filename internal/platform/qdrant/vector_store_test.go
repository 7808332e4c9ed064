package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/moveset-labs/clipcore/internal/platform/logger"
	"github.com/moveset-labs/clipcore/internal/store/vector"
)

func TestVectorStoreUpsertRequestShape(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/clipcore/points" {
			t.Fatalf("path: want=%q got=%q", "/collections/clipcore/points", r.URL.Path)
		}
		if r.URL.RawQuery != "wait=true" {
			t.Fatalf("query: want=%q got=%q", "wait=true", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	meta := map[string]any{"database_id": "ex-1"}
	err := s.Upsert(context.Background(), []vector.Vector{
		{ID: "vec-1", Values: []float32{1, 2, 3}, Metadata: meta},
		{ID: "vec-2", Values: []float32{4, 5, 6}, Metadata: map[string]any{"database_id": "ex-2"}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	pointsRaw, ok := captured["points"].([]any)
	if !ok {
		t.Fatalf("points type: got=%T", captured["points"])
	}
	if len(pointsRaw) != 2 {
		t.Fatalf("points length: want=2 got=%d", len(pointsRaw))
	}

	first, ok := pointsRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("point[0] type: got=%T", pointsRaw[0])
	}
	if first["id"] != s.pointID("vec-1") {
		t.Fatalf("point id mismatch: got=%v", first["id"])
	}
	payload, ok := first["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload type: got=%T", first["payload"])
	}
	if payload[payloadVectorIDKey] != "vec-1" {
		t.Fatalf("payload vector id: want=%q got=%v", "vec-1", payload[payloadVectorIDKey])
	}
	if payload["database_id"] != "ex-1" {
		t.Fatalf("payload database_id: want=%q got=%v", "ex-1", payload["database_id"])
	}

	if _, exists := meta[payloadVectorIDKey]; exists {
		t.Fatalf("input metadata mutated: vector id key should not exist")
	}
}

func TestVectorStoreSearchFilterAndScoreNormalization(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/collections/clipcore/points/search" {
			t.Fatalf("path: want=%q got=%q", "/collections/clipcore/points/search", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, []map[string]any{
			{
				"id":    "ignored-id-b",
				"score": 0.90,
				"payload": map[string]any{
					payloadVectorIDKey: "vec-b",
					"database_id":      "ex-b",
				},
			},
			{
				"id":    "ignored-id-a",
				"score": 0.10,
				"payload": map[string]any{
					payloadVectorIDKey: "vec-a",
					"database_id":      "ex-a",
				},
			},
		}), nil
	})
	s.distance = "euclid"

	hits, err := s.Search(context.Background(), []float32{1, 2, 3}, 2, 0, map[string]any{
		"movement_family": map[string]any{
			"$in": []any{"core", "push"},
		},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits length: want=2 got=%d", len(hits))
	}
	if hits[0].VectorID != "vec-a" || hits[1].VectorID != "vec-b" {
		t.Fatalf("hit ordering mismatch: got=%v", []string{hits[0].VectorID, hits[1].VectorID})
	}
	if !(hits[0].Score > hits[1].Score) {
		t.Fatalf("expected normalized descending scores, got=%v", []float64{hits[0].Score, hits[1].Score})
	}
	if hits[0].Payload["database_id"] != "ex-a" {
		t.Fatalf("hit payload not carried through: got=%v", hits[0].Payload)
	}

	filter, ok := captured["filter"].(map[string]any)
	if !ok {
		t.Fatalf("filter type: got=%T", captured["filter"])
	}
	must, ok := filter["must"].([]any)
	if !ok {
		t.Fatalf("must type: got=%T", filter["must"])
	}
	fileCond := findConditionByKey(must, "movement_family")
	if fileCond == nil {
		t.Fatalf("missing movement_family condition")
	}
	fileMatch, ok := fileCond["match"].(map[string]any)
	if !ok {
		t.Fatalf("movement_family match type: got=%T", fileCond["match"])
	}
	anyVals, ok := fileMatch["any"].([]any)
	if !ok {
		t.Fatalf("movement_family any type: got=%T", fileMatch["any"])
	}
	if len(anyVals) != 2 {
		t.Fatalf("movement_family any length: want=2 got=%d", len(anyVals))
	}
}

func TestVectorStoreSearchDropsBelowScoreThreshold(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return okResponse(t, []map[string]any{
			{"id": "ignored-2", "score": 0.20, "payload": map[string]any{payloadVectorIDKey: "vec-2"}},
			{"id": "ignored-1", "score": 0.90, "payload": map[string]any{payloadVectorIDKey: "vec-1"}},
		}), nil
	})

	hits, err := s.Search(context.Background(), []float32{1, 2, 3}, 5, 0.3, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits length: want=1 got=%d", len(hits))
	}
	if hits[0].VectorID != "vec-1" {
		t.Fatalf("hits mismatch: got=%v", hits)
	}
}

func TestVectorStoreDeleteDedupesAndDeterministicPointIDs(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/collections/clipcore/points/delete" {
			t.Fatalf("path: want=%q got=%q", "/collections/clipcore/points/delete", r.URL.Path)
		}
		if r.URL.RawQuery != "wait=true" {
			t.Fatalf("query: want=%q got=%q", "wait=true", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	err := s.Delete(context.Background(), []string{"vec-1", "vec-1", " ", "vec-2"})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}

	points, ok := captured["points"].([]any)
	if !ok {
		t.Fatalf("points type: got=%T", captured["points"])
	}
	if len(points) != 2 {
		t.Fatalf("points length: want=2 got=%d", len(points))
	}

	got := map[string]struct{}{}
	for _, p := range points {
		id, ok := p.(string)
		if !ok {
			t.Fatalf("point id type: got=%T", p)
		}
		got[id] = struct{}{}
	}
	wantA := s.pointID("vec-1")
	wantB := s.pointID("vec-2")
	if _, ok := got[wantA]; !ok {
		t.Fatalf("missing point id: %s", wantA)
	}
	if _, ok := got[wantB]; !ok {
		t.Fatalf("missing point id: %s", wantB)
	}
}

func TestVectorStoreInfo(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodGet {
			t.Fatalf("method: want=%s got=%s", http.MethodGet, r.Method)
		}
		if r.URL.Path != "/collections/clipcore" {
			t.Fatalf("path: want=%q got=%q", "/collections/clipcore", r.URL.Path)
		}
		return okResponse(t, map[string]any{
			"points_count": 42,
			"config": map[string]any{
				"params": map[string]any{
					"vectors": map[string]any{"size": 1536},
				},
			},
		}), nil
	})

	info, err := s.Info(context.Background())
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Size != 42 || info.Dimension != 1536 {
		t.Fatalf("info mismatch: got=%+v", info)
	}
}

func TestVectorStoreScrollPagesUntilNoNextOffset(t *testing.T) {
	calls := 0
	var s *vectorStore
	s = newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		calls++
		if r.URL.Path != "/collections/clipcore/points/scroll" {
			t.Fatalf("path: want=%q got=%q", "/collections/clipcore/points/scroll", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if calls == 1 {
			if _, hasOffset := body["offset"]; hasOffset {
				t.Fatalf("first page should have no offset, got=%v", body["offset"])
			}
			return okResponse(t, map[string]any{
				"points": []map[string]any{
					{"id": s.pointID("vec-1"), "payload": map[string]any{payloadVectorIDKey: "vec-1", "database_id": "ex-1"}},
				},
				"next_page_offset": s.pointID("vec-1"),
			}), nil
		}
		if body["offset"] != s.pointID("vec-1") {
			t.Fatalf("second page offset: want=%q got=%v", s.pointID("vec-1"), body["offset"])
		}
		return okResponse(t, map[string]any{
			"points":            []map[string]any{},
			"next_page_offset": nil,
		}), nil
	})

	hits, next, err := s.Scroll(context.Background(), "", 100)
	if err != nil {
		t.Fatalf("Scroll: %v", err)
	}
	if len(hits) != 1 || hits[0].VectorID != "vec-1" {
		t.Fatalf("hits mismatch: got=%+v", hits)
	}
	if next != "vec-1" {
		t.Fatalf("next cursor: want=%q got=%q", "vec-1", next)
	}

	hits, next, err = s.Scroll(context.Background(), next, 100)
	if err != nil {
		t.Fatalf("Scroll page 2: %v", err)
	}
	if len(hits) != 0 || next != "" {
		t.Fatalf("second page should be empty and final, got hits=%+v next=%q", hits, next)
	}
}

func TestVectorStoreSearchUnsupportedFilterError(t *testing.T) {
	s := &vectorStore{
		cfg:      Config{Collection: "clipcore", VectorDim: 3},
		baseURL:  "http://qdrant.local",
		http:     &http.Client{},
		log:      newTestLogger(t),
		distance: "cosine",
	}

	_, err := s.Search(context.Background(), []float32{1, 2, 3}, 3, 0, map[string]any{
		"type": map[string]any{
			"$gt": 1,
		},
	})
	if err == nil {
		t.Fatalf("Search: expected error, got nil")
	}
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErr.Code != OperationErrorUnsupportedFilter {
		t.Fatalf("error code: want=%q got=%q", OperationErrorUnsupportedFilter, opErr.Code)
	}
}

func TestClassifyHTTPCallErrorTimeout(t *testing.T) {
	err := classifyHTTPCallError("query", "timeout", context.DeadlineExceeded)
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErr.Code != OperationErrorTimeout {
		t.Fatalf("error code: want=%q got=%q", OperationErrorTimeout, opErr.Code)
	}
}

func TestClassifyHTTPCallErrorTransport(t *testing.T) {
	err := classifyHTTPCallError("query", "transport", fmt.Errorf("boom"))
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErr.Code != OperationErrorTransportFailed {
		t.Fatalf("error code: want=%q got=%q", OperationErrorTransportFailed, opErr.Code)
	}
}

func newTestVectorStore(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *vectorStore {
	t.Helper()
	client := &http.Client{
		Transport: roundTripFunc(roundTrip),
	}
	return &vectorStore{
		log:      newTestLogger(t),
		cfg:      Config{Collection: "clipcore", VectorDim: 3},
		baseURL:  "http://qdrant.local",
		http:     client,
		distance: "cosine",
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	payload := map[string]any{
		"result": result,
		"status": "ok",
		"time":   0.001,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
