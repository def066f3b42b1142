package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"relay/internal/budget"
	"relay/internal/content"
	"relay/internal/stream"
	"relay/internal/telemetry"
	"relay/internal/wire"
	"relay/pkg/logger"
)

// DefaultTimeout bounds non-streaming requests end to end.
const DefaultTimeout = 5 * time.Minute

// Config holds the immutable client configuration. It is built once from
// the settings provider; components see only the fields they need.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Headers     map[string]string
	Proxy       string
	Debug       bool
	Timeout     time.Duration
	Temperature float64
	TopP        float64
	// MaxOutputTokens caps completion length. Zero falls back to the
	// model budget's output allowance.
	MaxOutputTokens int
}

// Request bundles one outgoing generation request.
type Request struct {
	Turns             []content.Turn
	SystemInstruction string
	Tools             []content.ToolGroup
	// MaxOutputTokens overrides the client default when positive.
	MaxOutputTokens int
}

// Response is the canonical result of a completed generation call.
type Response struct {
	Turn         content.Turn
	Usage        *wire.Usage
	FinishReason string
	Model        string
}

// Client sends chat completion, streaming and embeddings requests against
// one OpenAI-style backend.
type Client struct {
	cfg          Config
	modelBudget  budget.ModelBudget
	httpClient   *http.Client
	streamClient *http.Client
	sink         telemetry.Sink
	retry        RetryPolicy
	optimizer    budget.OptimizerOptions
}

// Option customizes a Client.
type Option func(*Client)

// WithTelemetry sets the telemetry sink.
func WithTelemetry(sink telemetry.Sink) Option {
	return func(c *Client) { c.sink = sink }
}

// WithRetryPolicy replaces the default budget-retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithOptimizerOptions tunes the budget optimizer's heuristics.
func WithOptimizerOptions(o budget.OptimizerOptions) Option {
	return func(c *Client) { c.optimizer = o }
}

// NewClient creates a client for the configured backend.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("generate: base URL is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("generate: model is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		IdleConnTimeout:       90 * time.Second,
	}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("generate: invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	c := &Client{
		cfg:         cfg,
		modelBudget: budget.Lookup(cfg.Model),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		// The stream client has no overall timeout: http.Client.Timeout
		// includes body read time, which kills long-running SSE streams.
		streamClient: &http.Client{
			Transport: transport,
		},
		sink:  telemetry.LogSink{},
		retry: DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// ContextLimit returns the model's context window size.
func (c *Client) ContextLimit() int {
	return c.modelBudget.MaxContextTokens
}

// CountTokens estimates the token count of the turns as they would appear
// on the wire. The estimate is heuristic but always determinable.
func (c *Client) CountTokens(turns []content.Turn) (int, bool) {
	return budget.EstimateMessages(wire.ToWire(turns, "")), true
}

// Generate sends a non-streaming chat completion request. A detected
// budget overflow is retried per the retry policy with a harsher
// output-token allowance.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	maxOut := c.outputTokens(req)
	for attempt := 1; ; attempt++ {
		resp, err := c.generateOnce(ctx, req, maxOut)
		if err == nil {
			return resp, nil
		}
		if attempt >= c.retry.MaxAttempts || c.retry.IsRetryable == nil || !c.retry.IsRetryable(err) {
			return nil, err
		}
		maxOut = int(float64(maxOut) * retryOutputFactor)
		logger.Warn().Err(err).Int("attempt", attempt).Int("max_output_tokens", maxOut).
			Msg("budget overflow, retrying with reduced output allowance")
		if werr := c.retry.wait(ctx, attempt); werr != nil {
			return nil, werr
		}
	}
}

func (c *Client) generateOnce(ctx context.Context, req Request, maxOut int) (*Response, error) {
	body, err := c.buildBody(req, maxOut, false)
	if err != nil {
		return nil, err
	}

	requestID := c.newRequestID()
	started := time.Now()
	telemetry.Emit(c.sink, telemetry.Event{
		Type:      telemetry.EventRequest,
		RequestID: requestID,
		Model:     c.cfg.Model,
	})

	httpResp, err := c.do(ctx, "/v1/chat/completions", body, requestID, c.httpClient)
	if err != nil {
		c.emitError(requestID, 0, started, err)
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("generate: failed to read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		berr := &BackendError{Status: httpResp.StatusCode, Body: string(respBody)}
		c.emitError(requestID, httpResp.StatusCode, started, berr)
		return nil, berr
	}

	var chatResp wire.ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		logger.Error().Err(err).Str("body", string(respBody)).Msg("failed to parse chat response")
		return nil, ErrInvalidResponse
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("generate: backend error: [%s] %s", chatResp.Error.Type, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := chatResp.Choices[0]
	resp := &Response{
		Turn:         wire.FromWire(choice),
		Usage:        chatResp.Usage,
		FinishReason: choice.FinishReason,
		Model:        chatResp.Model,
	}

	ev := telemetry.Event{
		Type:       telemetry.EventResponse,
		RequestID:  requestID,
		Model:      chatResp.Model,
		DurationMs: time.Since(started).Milliseconds(),
		Status:     httpResp.StatusCode,
	}
	if chatResp.Usage != nil {
		ev.PromptTokens = chatResp.Usage.PromptTokens
		ev.CompletionTokens = chatResp.Usage.CompletionTokens
		ev.TotalTokens = chatResp.Usage.TotalTokens
	}
	telemetry.Emit(c.sink, ev)

	return resp, nil
}

// GenerateStream sends a streaming chat completion request and returns the
// decoded event sequence. Budget retries apply only to the initial
// response; once the stream is open, errors surface as stream events.
func (c *Client) GenerateStream(ctx context.Context, req Request) (<-chan stream.Event, error) {
	maxOut := c.outputTokens(req)
	for attempt := 1; ; attempt++ {
		events, err := c.streamOnce(ctx, req, maxOut)
		if err == nil {
			return events, nil
		}
		if attempt >= c.retry.MaxAttempts || c.retry.IsRetryable == nil || !c.retry.IsRetryable(err) {
			return nil, err
		}
		maxOut = int(float64(maxOut) * retryOutputFactor)
		logger.Warn().Err(err).Int("attempt", attempt).Int("max_output_tokens", maxOut).
			Msg("budget overflow, retrying stream with reduced output allowance")
		if werr := c.retry.wait(ctx, attempt); werr != nil {
			return nil, werr
		}
	}
}

func (c *Client) streamOnce(ctx context.Context, req Request, maxOut int) (<-chan stream.Event, error) {
	body, err := c.buildBody(req, maxOut, true)
	if err != nil {
		return nil, err
	}

	requestID := c.newRequestID()
	telemetry.Emit(c.sink, telemetry.Event{
		Type:      telemetry.EventRequest,
		RequestID: requestID,
		Model:     c.cfg.Model,
	})

	httpResp, err := c.do(ctx, "/v1/chat/completions", body, requestID, c.streamClient)
	if err != nil {
		c.emitError(requestID, 0, time.Now(), err)
		return nil, err
	}
	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		berr := &BackendError{Status: httpResp.StatusCode, Body: string(respBody)}
		c.emitError(requestID, httpResp.StatusCode, time.Now(), berr)
		return nil, berr
	}

	return stream.Decode(ctx, httpResp.Body), nil
}

// Embed requests embedding vectors for the given inputs.
func (c *Client) Embed(ctx context.Context, input []string) ([][]float64, error) {
	body, err := json.Marshal(wire.EmbeddingsRequest{Model: c.cfg.Model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("generate: failed to marshal request: %w", err)
	}

	httpResp, err := c.do(ctx, "/v1/embeddings", body, c.newRequestID(), c.httpClient)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("generate: failed to read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &BackendError{Status: httpResp.StatusCode, Body: string(respBody)}
	}

	var embResp wire.EmbeddingsResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, ErrInvalidResponse
	}
	out := make([][]float64, len(embResp.Data))
	for i, d := range embResp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (c *Client) outputTokens(req Request) int {
	if req.MaxOutputTokens > 0 {
		return req.MaxOutputTokens
	}
	if c.cfg.MaxOutputTokens > 0 {
		return c.cfg.MaxOutputTokens
	}
	return c.modelBudget.MaxOutputTokens
}

// buildBody translates, optimizes and serializes one request, then applies
// any dialect rewrites for the configured base URL.
func (c *Client) buildBody(req Request, maxOut int, streaming bool) ([]byte, error) {
	messages := wire.ToWire(req.Turns, req.SystemInstruction)
	tools := wire.ToWireTools(req.Tools)

	optimized, err := budget.Optimize(messages, maxOut, tools, c.modelBudget, c.optimizer)
	if err != nil {
		return nil, err
	}
	if len(optimized) < len(messages) {
		logger.Debug().Int("before", len(messages)).Int("after", len(optimized)).
			Msg("budget optimizer reduced message count")
	}

	chatReq := wire.ChatRequest{
		Model:       c.cfg.Model,
		Messages:    optimized,
		MaxTokens:   maxOut,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		Stream:      streaming,
		Tools:       tools,
	}
	if len(tools) > 0 {
		chatReq.ToolChoice = "auto"
	}

	data, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("generate: failed to marshal request: %w", err)
	}
	return wire.NormalizeBody(c.cfg.BaseURL, data), nil
}

func (c *Client) do(ctx context.Context, path string, body []byte, requestID string, client *http.Client) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("generate: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	if c.cfg.Debug {
		logger.Debug().Str("path", path).Int("request_bytes", len(body)).
			Str("request_id", requestID).Msg("sending request")
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrRequestTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return resp, nil
}

func (c *Client) newRequestID() string {
	id, err := gonanoid.New()
	if err != nil {
		return "req_unknown"
	}
	return id
}

func (c *Client) emitError(requestID string, status int, started time.Time, err error) {
	telemetry.Emit(c.sink, telemetry.Event{
		Type:       telemetry.EventError,
		RequestID:  requestID,
		Model:      c.cfg.Model,
		Status:     status,
		DurationMs: time.Since(started).Milliseconds(),
		Error:      err.Error(),
	})
}
