package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/moveset-labs/clipcore/internal/platform/ctxutil"
	"github.com/moveset-labs/clipcore/internal/platform/httpx"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
)

// ImageInput is a normalized multimodal image input: a frame handed to the
// Analyzer either as a https:// URL or a data:image/...;base64,... URI.
type ImageInput struct {
	ImageURL string
	Detail   string // "low" | "high"
}

// Client is the OpenAI Responses API surface this repo needs: text and
// embedding generation for the Multimodal Analyzer and Vector Store.
type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
	GenerateText(ctx context.Context, system string, user string) (string, error)
	GenerateTextWithImages(ctx context.Context, system string, user string, images []ImageInput) (string, error)
	GenerateJSONWithImages(ctx context.Context, system string, user string, images []ImageInput, schemaName string, schema map[string]any) (map[string]any, error)
}

type OpenAIClient = Client

func NewOpenAIClient(log *logger.Logger) (OpenAIClient, error) { return NewClient(log) }

// WithModel returns a client that uses the provided model for text generation calls.
func WithModel(base Client, model string) Client {
	model = strings.TrimSpace(model)
	if base == nil || model == "" {
		return base
	}
	if c, ok := base.(*client); ok {
		return c.cloneWithModel(model)
	}
	return base
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	httpClient *http.Client

	maxRetries int

	temperature        *float64
	disableTemperature bool

	noTempModels   map[string]bool
	noTempPrefixes []string

	noTempMu   sync.RWMutex
	noTempSeen map[string]time.Time
	noTempTTL  time.Duration

	limiter *rate.Limiter
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if model == "" {
		model = "gpt-5.2"
	}

	embed := strings.TrimSpace(os.Getenv("OPENAI_EMBED_MODEL"))
	if embed == "" {
		embed = "text-embedding-3-small"
	}

	timeoutSec := 180
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 4
	if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	disableTemperature := parseBoolEnv("OPENAI_DISABLE_TEMPERATURE", false)

	tempPtr := (*float64)(nil)
	if !disableTemperature {
		temp := 0.2
		if v := strings.TrimSpace(os.Getenv("OPENAI_TEMPERATURE")); v != "" {
			low := strings.ToLower(v)
			if low == "off" || low == "none" || low == "nil" || low == "false" {
				disableTemperature = true
			} else if f, err := strconv.ParseFloat(v, 64); err == nil {
				temp = f
			}
		}
		if !disableTemperature {
			tempPtr = f64ptr(temp)
		}
	}

	noTempModels, noTempPrefixes := parseNoTempModelRules(os.Getenv("OPENAI_NO_TEMPERATURE_MODELS"))

	noTempTTL := 24 * time.Hour
	if v := strings.TrimSpace(os.Getenv("OPENAI_NO_TEMPERATURE_TTL_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			noTempTTL = time.Duration(parsed) * time.Second
		}
	}

	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	requestsPerSecond := 5
	if v := strings.TrimSpace(os.Getenv("OPENAI_REQUESTS_PER_SECOND")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			requestsPerSecond = parsed
		}
	}

	return &client{
		log:                log.With("service", "OpenAIClient"),
		baseURL:            baseURL,
		apiKey:             apiKey,
		model:              model,
		embedModel:         embed,
		httpClient:         &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries:         maxRetries,
		temperature:        tempPtr,
		disableTemperature: disableTemperature,
		noTempModels:       noTempModels,
		noTempPrefixes:     noTempPrefixes,
		noTempSeen:         map[string]time.Time{},
		noTempTTL:          noTempTTL,
		limiter:            rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}, nil
}

func (c *client) cloneWithModel(model string) *client {
	if c == nil || strings.TrimSpace(model) == "" {
		return c
	}
	clone := &client{
		log:                c.log,
		baseURL:            c.baseURL,
		apiKey:             c.apiKey,
		model:              strings.TrimSpace(model),
		embedModel:         c.embedModel,
		httpClient:         c.httpClient,
		maxRetries:         c.maxRetries,
		temperature:        c.temperature,
		disableTemperature: c.disableTemperature,
		noTempModels:       c.noTempModels,
		noTempPrefixes:     c.noTempPrefixes,
		noTempSeen:         map[string]time.Time{},
		noTempTTL:          c.noTempTTL,
		limiter:            c.limiter,
	}
	c.noTempMu.RLock()
	for k, v := range c.noTempSeen {
		clone.noTempSeen[k] = v
	}
	c.noTempMu.RUnlock()
	return clone
}

func parseBoolEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func f64ptr(v float64) *float64 { return &v }

func normalizeModelKey(m string) string { return strings.ToLower(strings.TrimSpace(m)) }

// parseNoTempModelRules parses OPENAI_NO_TEMPERATURE_MODELS: comma-separated
// model ids, supporting a "*" suffix for prefix matches (e.g. "o1-*").
func parseNoTempModelRules(raw string) (map[string]bool, []string) {
	m := map[string]bool{}
	var prefixes []string
	for _, part := range strings.Split(raw, ",") {
		s := normalizeModelKey(part)
		if s == "" {
			continue
		}
		if strings.HasSuffix(s, "*") {
			p := strings.TrimSpace(strings.TrimRight(strings.TrimSuffix(s, "*"), "-_./:"))
			if p != "" {
				prefixes = append(prefixes, p)
			}
			continue
		}
		m[s] = true
	}
	return m, prefixes
}

func (c *client) modelIsNoTemp(model string) bool {
	m := normalizeModelKey(model)
	if m == "" {
		return false
	}
	if c.noTempModels != nil && c.noTempModels[m] {
		return true
	}
	for _, p := range c.noTempPrefixes {
		if p != "" && strings.HasPrefix(m, p) {
			return true
		}
	}
	c.noTempMu.RLock()
	ts, ok := c.noTempSeen[m]
	ttl := c.noTempTTL
	c.noTempMu.RUnlock()
	if !ok {
		return false
	}
	if ttl <= 0 {
		return true
	}
	return time.Since(ts) < ttl
}

func (c *client) noteNoTempModel(model string) {
	m := normalizeModelKey(model)
	if m == "" {
		return
	}
	c.noTempMu.Lock()
	if c.noTempSeen == nil {
		c.noTempSeen = map[string]time.Time{}
	}
	c.noTempSeen[m] = time.Now().UTC()
	c.noTempMu.Unlock()
}

func (c *client) applyTemperature(req *responsesRequest) {
	if req == nil || c.disableTemperature || c.temperature == nil {
		return
	}
	if c.modelIsNoTemp(req.Model) {
		return
	}
	req.Temperature = c.temperature
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func isUnsupportedTemperatureMessage(s string) bool {
	msg := strings.ToLower(strings.TrimSpace(s))
	if msg == "" || !strings.Contains(msg, "temperature") {
		return false
	}
	for _, needle := range []string{
		"unsupported parameter", "unknown parameter", "unrecognized parameter",
		"not supported", "does not support", "only the default",
		"unsupported_value", "invalid_request_error",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func isUnsupportedTemperatureParam(err error) bool {
	return err != nil && isUnsupportedTemperatureMessage(err.Error())
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctxutil.Default(ctx)); err != nil {
			return nil, nil, err
		}
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

// doWithTempFallback retries exactly once without temperature if the model rejects it.
func (c *client) doWithTempFallback(ctx context.Context, path string, req *responsesRequest, out any) error {
	err := c.do(ctx, "POST", path, req, out)
	if err == nil || req.Temperature == nil || !isUnsupportedTemperatureParam(err) {
		return err
	}
	c.noteNoTempModel(req.Model)
	req.Temperature = nil
	return c.do(ctx, "POST", path, req, out)
}

// -------------------- Embeddings --------------------

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	req := embeddingsRequest{Model: c.embedModel, Input: clean}
	var resp embeddingsResponse
	if err := c.do(ctx, "POST", "/v1/embeddings", req, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	if hasMissingEmbeddings(out) {
		return nil, fmt.Errorf("openai embeddings missing indices: requested=%d returned=%d model=%s", len(clean), len(resp.Data), c.embedModel)
	}
	return out, nil
}

func hasMissingEmbeddings(v [][]float32) bool {
	for i := range v {
		if len(v[i]) == 0 {
			return true
		}
	}
	return false
}

// -------------------- Responses API (text + json) --------------------

type responsesRequest struct {
	Model        string `json:"model"`
	Instructions string `json:"instructions,omitempty"`

	Input []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	} `json:"input"`

	Text struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" && c.Text != "" {
				out.WriteString(c.Text)
			}
		}
	}
	return out.String()
}

func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}

	req := &responsesRequest{
		Model: c.model,
		Input: []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		}{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	c.applyTemperature(req)
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	var resp responsesResponse
	if err := c.doWithTempFallback(ctx, "/v1/responses", req, &resp); err != nil {
		return nil, err
	}
	if resp.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", resp.Refusal)
	}

	jsonText := extractOutputText(resp)
	if strings.TrimSpace(jsonText) == "" {
		return nil, fmt.Errorf("no output_text found in response")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonText), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w; text=%s", err, jsonText)
	}
	return obj, nil
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	req := &responsesRequest{
		Model: c.model,
		Input: []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		}{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	c.applyTemperature(req)

	var resp responsesResponse
	if err := c.doWithTempFallback(ctx, "/v1/responses", req, &resp); err != nil {
		return "", err
	}
	if resp.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", resp.Refusal)
	}
	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no output_text found in response")
	}
	return text, nil
}

func (c *client) GenerateJSONWithImages(ctx context.Context, system string, user string, images []ImageInput, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}

	content := make([]map[string]any, 0, 1+len(images))
	content = append(content, map[string]any{"type": "input_text", "text": user})
	for _, img := range images {
		u := strings.TrimSpace(img.ImageURL)
		if u == "" {
			continue
		}
		item := map[string]any{"type": "input_image", "image_url": u}
		if d := strings.TrimSpace(img.Detail); d != "" {
			item["detail"] = d
		}
		content = append(content, item)
	}

	var userContent any = user
	if len(content) > 1 {
		userContent = content
	}

	req := &responsesRequest{
		Model: c.model,
		Input: []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		}{
			{Role: "system", Content: system},
			{Role: "user", Content: userContent},
		},
	}
	c.applyTemperature(req)
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	var resp responsesResponse
	if err := c.doWithTempFallback(ctx, "/v1/responses", req, &resp); err != nil {
		return nil, err
	}
	if resp.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", resp.Refusal)
	}

	jsonText := extractOutputText(resp)
	if strings.TrimSpace(jsonText) == "" {
		return nil, fmt.Errorf("no output_text found in response")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonText), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w; text=%s", err, jsonText)
	}
	return obj, nil
}

func (c *client) GenerateTextWithImages(ctx context.Context, system string, user string, images []ImageInput) (string, error) {
	content := make([]map[string]any, 0, 1+len(images))
	content = append(content, map[string]any{"type": "input_text", "text": user})
	for _, img := range images {
		u := strings.TrimSpace(img.ImageURL)
		if u == "" {
			continue
		}
		item := map[string]any{"type": "input_image", "image_url": u}
		if d := strings.TrimSpace(img.Detail); d != "" {
			item["detail"] = d
		}
		content = append(content, item)
	}
	if len(content) == 1 {
		return c.GenerateText(ctx, system, user)
	}

	req := &responsesRequest{
		Model: c.model,
		Input: []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		}{
			{Role: "system", Content: system},
			{Role: "user", Content: content},
		},
	}
	c.applyTemperature(req)

	var resp responsesResponse
	if err := c.doWithTempFallback(ctx, "/v1/responses", req, &resp); err != nil {
		return "", err
	}
	if resp.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", resp.Refusal)
	}
	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no output_text found in response")
	}
	return text, nil
}
