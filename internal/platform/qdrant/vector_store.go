package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/moveset-labs/clipcore/internal/platform/ctxutil"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
	"github.com/moveset-labs/clipcore/internal/store/vector"
)

const (
	payloadVectorIDKey = "_vector_id"
	maxErrorBodyBytes   = 1024
)

type vectorStore struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	distance string
	http     *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

type qdrantSearchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func NewVectorStore(log *logger.Logger, cfg Config) (vector.Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg, true); err != nil {
		return nil, err
	}

	s := &vectorStore{
		log:     log.With("service", "QdrantVectorStore"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}

	if err := s.verifyReady(context.Background()); err != nil {
		return nil, err
	}

	log.Info("Qdrant vector store selected",
		"provider", "qdrant",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"vector_dim", cfg.VectorDim,
		"distance", s.distance,
	)
	return s, nil
}

func (s *vectorStore) Upsert(ctx context.Context, vectors []vector.Vector) error {
	const op = "upsert"
	if len(vectors) == 0 {
		return nil
	}

	points := make([]map[string]any, 0, len(vectors))
	for _, v := range vectors {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "vector id is required", nil)
		}
		if len(v.Values) == 0 {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("vector %q has empty values", id), nil)
		}
		if s.cfg.VectorDim > 0 && len(v.Values) != s.cfg.VectorDim {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("vector %q dimension mismatch: expected=%d got=%d", id, s.cfg.VectorDim, len(v.Values)), nil)
		}
		payload := clonePayload(v.Metadata)
		payload[payloadVectorIDKey] = id
		points = append(points, map[string]any{
			"id":      s.pointID(id),
			"vector":  v.Values,
			"payload": payload,
		})
	}

	req := map[string]any{"points": points}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil)
}

func (s *vectorStore) Search(ctx context.Context, query []float32, k int, scoreThreshold float64, filter map[string]any) ([]vector.Hit, error) {
	const op = "search"
	if len(query) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if s.cfg.VectorDim > 0 && len(query) != s.cfg.VectorDim {
		return nil, opErr(op, OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(query)), nil)
	}
	if k <= 0 {
		k = 10
	}

	qdrantFilter, err := translateFilterMap(filter)
	if err != nil {
		var opErrTyped *OperationError
		if errors.As(err, &opErrTyped) && opErrTyped.Code == OperationErrorUnsupportedFilter {
			s.log.Warn("qdrant search filter unsupported", "error", err)
		}
		return nil, err
	}

	req := map[string]any{
		"vector":       query,
		"limit":        k,
		"with_payload": true,
		"with_vector":  false,
	}
	if len(qdrantFilter.Must) > 0 || len(qdrantFilter.Should) > 0 || len(qdrantFilter.MustNot) > 0 {
		req["filter"] = qdrantFilter.asMap()
	}
	if scoreThreshold > 0 {
		req["score_threshold"] = s.denormalizeThreshold(scoreThreshold)
	}

	var rawResults []qdrantSearchResultItem
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &rawResults); err != nil {
		return nil, err
	}

	out := make([]vector.Hit, 0, len(rawResults))
	for _, item := range rawResults {
		id := s.extractVectorID(item)
		if id == "" {
			continue
		}
		score := s.normalizeScore(item.Score)
		if score < scoreThreshold {
			continue
		}
		out = append(out, vector.Hit{VectorID: id, Score: score, Payload: item.Payload})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].VectorID < out[j].VectorID
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func (s *vectorStore) Delete(ctx context.Context, ids []string) error {
	const op = "delete"
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		vectorID := strings.TrimSpace(id)
		if vectorID == "" {
			continue
		}
		pointID := s.pointID(vectorID)
		if _, exists := seen[pointID]; exists {
			continue
		}
		seen[pointID] = struct{}{}
		pointIDs = append(pointIDs, pointID)
	}
	if len(pointIDs) == 0 {
		return nil
	}

	req := map[string]any{"points": pointIDs}
	return s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, nil)
}

func (s *vectorStore) Scroll(ctx context.Context, cursor string, limit int) ([]vector.Hit, string, error) {
	const op = "scroll"
	if limit <= 0 {
		limit = 100
	}

	req := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if cursor != "" {
		req["offset"] = s.pointID(cursor)
	}

	var result struct {
		Points []qdrantSearchResultItem `json:"points"`
		Next   json.RawMessage          `json:"next_page_offset"`
	}
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/scroll"), req, &result); err != nil {
		return nil, "", err
	}

	out := make([]vector.Hit, 0, len(result.Points))
	for _, item := range result.Points {
		id := s.extractVectorID(item)
		if id == "" {
			continue
		}
		out = append(out, vector.Hit{VectorID: id, Score: 0, Payload: item.Payload})
	}

	nextCursor := ""
	if len(result.Next) > 0 && string(result.Next) != "null" {
		if len(out) > 0 {
			nextCursor = out[len(out)-1].VectorID
		}
	}
	return out, nextCursor, nil
}

func (s *vectorStore) Info(ctx context.Context) (vector.Info, error) {
	const op = "info"
	var result struct {
		PointsCount int `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &result); err != nil {
		return vector.Info{}, err
	}
	return vector.Info{Size: result.PointsCount, Dimension: result.Config.Params.Vectors.Size}, nil
}

func (s *vectorStore) verifyReady(ctx context.Context) error {
	const op = "bootstrap_verify"

	readyReq, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	readyResp, err := s.http.Do(readyReq)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = readyResp.Body.Close()
	if readyResp.StatusCode < 200 || readyResp.StatusCode >= 300 {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: readyResp.StatusCode,
			Message: fmt.Sprintf("qdrant ready check returned status=%d", readyResp.StatusCode)}
	}

	var result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &result); err != nil {
		return err
	}

	size := result.Config.Params.Vectors.Size
	if size != 0 && size != s.cfg.VectorDim {
		return &OperationError{Code: OperationErrorValidation, Operation: op,
			Message: fmt.Sprintf("qdrant collection %q vector size mismatch: expected=%d actual=%d", s.cfg.Collection, s.cfg.VectorDim, size)}
	}
	s.distance = strings.TrimSpace(result.Config.Params.Vectors.Distance)
	return nil
}

func (s *vectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw))}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode, Message: statusErr}
	}

	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func clonePayload(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// pointID is a deterministic UUIDv5-style point ID: qdrant requires UUID or
// integer point IDs, and a spec-level vector_id (an opaque string) must map
// onto the same point every time it is upserted.
func (s *vectorStore) pointID(vectorID string) string {
	return deterministicPointID(s.cfg.Collection, vectorID)
}

func (s *vectorStore) collectionPath(suffix string) string {
	path := "/collections/" + s.cfg.Collection
	if strings.TrimSpace(suffix) == "" {
		return path
	}
	return path + suffix
}

func (s *vectorStore) extractVectorID(item qdrantSearchResultItem) string {
	if payloadID, ok := item.Payload[payloadVectorIDKey].(string); ok {
		if id := strings.TrimSpace(payloadID); id != "" {
			return id
		}
	}
	return decodePointID(item.ID)
}

func decodePointID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	var idNumber int64
	if err := json.Unmarshal(raw, &idNumber); err == nil {
		return fmt.Sprintf("%d", idNumber)
	}
	return strings.TrimSpace(string(raw))
}

// normalizeScore maps a qdrant distance score onto the [0,1]-ish cosine-like
// scale the spec's score_threshold assumes.
func (s *vectorStore) normalizeScore(score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s.distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		return score
	}
}

func (s *vectorStore) denormalizeThreshold(threshold float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s.distance)) {
	case "euclid", "manhattan":
		if threshold <= 0 || threshold >= 1 {
			return 0
		}
		return (1.0 / threshold) - 1.0
	default:
		return threshold
	}
}
