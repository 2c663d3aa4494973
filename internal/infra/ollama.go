package infra

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

const (
	// DefaultOllamaURL is where a local server listens by default.
	DefaultOllamaURL = "http://localhost:11434"
	// DefaultOllamaTimeout bounds a single HTTP exchange.
	DefaultOllamaTimeout = 120 * time.Second
	// DefaultMaxImageSize is the longest edge images are downscaled to.
	DefaultMaxImageSize = 768

	pingTimeout = 2 * time.Second
)

// stopSequences end generation once a JSON object looks complete.
var stopSequences = []string{"\n\n", "}\n", "\n}\n"}

// OllamaConfig configures an OllamaClient.
type OllamaConfig struct {
	BaseURL      string
	Timeout      time.Duration
	AutoStart    bool
	AutoPull     bool
	MaxImageSize int
	Debug        bool
}

// DefaultOllamaConfig returns production defaults.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		BaseURL:      DefaultOllamaURL,
		Timeout:      DefaultOllamaTimeout,
		AutoStart:    true,
		AutoPull:     true,
		MaxImageSize: DefaultMaxImageSize,
	}
}

// OllamaClient implements domain.VLMClient against the Ollama HTTP API.
type OllamaClient struct {
	cfg      OllamaConfig
	http     *http.Client
	cache    *ModelCache
	launcher *ServerLauncher
	logger   *zap.Logger
}

// NewOllamaClient connects to the configured server, starting one when
// AutoStart is set and nothing answers.
func NewOllamaClient(ctx context.Context, cfg OllamaConfig, logger *zap.Logger) (*OllamaClient, error) {
	return NewOllamaClientWithDeps(ctx, cfg, &http.Client{Timeout: cfg.Timeout}, sharedModelCache, &RealCommandRunner{}, logger)
}

// NewOllamaClientWithDeps creates a client with injected dependencies (for testing).
func NewOllamaClientWithDeps(ctx context.Context, cfg OllamaConfig, httpClient *http.Client, cache *ModelCache, runner CommandRunner, logger *zap.Logger) (*OllamaClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxImageSize <= 0 {
		cfg.MaxImageSize = DefaultMaxImageSize
	}
	if cache == nil {
		cache = sharedModelCache
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &OllamaClient{
		cfg:    cfg,
		http:   httpClient,
		cache:  cache,
		logger: logger.With(zap.String("base_url", cfg.BaseURL)),
	}
	c.launcher = NewServerLauncher("ollama", c, runner, c.logger)

	if err := c.Ping(ctx); err != nil {
		if !cfg.AutoStart {
			return nil, fmt.Errorf("%w at %s: %v", domain.ErrServerUnavailable, cfg.BaseURL, err)
		}
		c.logger.Info("model server not reachable, starting it", zap.Error(err))
		if err := c.launcher.EnsureRunning(ctx); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Launcher exposes the server lifecycle manager.
func (c *OllamaClient) Launcher() *ServerLauncher {
	return c.launcher
}

// BaseURL returns the normalized server address.
func (c *OllamaClient) BaseURL() string {
	return c.cfg.BaseURL
}

// Close stops a server this client started.
func (c *OllamaClient) Close() error {
	return c.launcher.Stop()
}

// Ping checks that the server answers /api/tags within two seconds.
func (c *OllamaClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

type tagsResponse struct {
	Models []struct {
		Name       string    `json:"name"`
		Size       int64     `json:"size"`
		ModifiedAt time.Time `json:"modified_at"`
	} `json:"models"`
}

// ListModels returns the installed models. Listings are cached per server.
func (c *OllamaClient) ListModels(ctx context.Context) ([]domain.ModelInfo, error) {
	if models, ok := c.cache.Listing(c.cfg.BaseURL); ok {
		return models, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrServerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}

	models := make([]domain.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, domain.ModelInfo{Name: m.Name, Size: m.Size, ModifiedAt: m.ModifiedAt})
	}
	c.cache.SetListing(c.cfg.BaseURL, models)
	return models, nil
}

func (c *OllamaClient) availability(ctx context.Context, name string) ModelAvailability {
	key := ModelKey{BaseURL: c.cfg.BaseURL, Name: name}
	if a, ok := c.cache.Availability(key); ok {
		return a
	}

	models, err := c.ListModels(ctx)
	if err != nil {
		c.logger.Warn("failed to list models", zap.Error(err))
		// not cached so the next call retries
		return ModelAvailability{Available: false, Resolved: name}
	}

	a := ResolveModel(models, name)
	c.cache.SetAvailability(key, a)
	return a
}

// CheckModelAvailable reports whether name, or a model it prefixes, is installed.
func (c *OllamaClient) CheckModelAvailable(ctx context.Context, name string) bool {
	return c.availability(ctx, name).Available
}

// ResolveModelName maps name to the installed model it refers to.
func (c *OllamaClient) ResolveModelName(ctx context.Context, name string) string {
	return c.availability(ctx, name).Resolved
}

type pullStatus struct {
	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
	Error     string `json:"error"`
}

// PullModel downloads a model, logging progress lines as they arrive.
func (c *OllamaClient) PullModel(ctx context.Context, name string) bool {
	c.logger.Info("pulling model", zap.String("model", name))

	body, err := json.Marshal(map[string]any{"name": name})
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	// pulls can take far longer than one generation
	httpClient := *c.http
	httpClient.Timeout = 0
	resp, err := httpClient.Do(req)
	if err != nil {
		c.logger.Error("pull request failed", zap.String("model", name), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		c.logger.Error("pull rejected",
			zap.String("model", name),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(msg)))
		return false
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var st pullStatus
		if err := json.Unmarshal(scanner.Bytes(), &st); err != nil {
			continue
		}
		if st.Error != "" {
			c.logger.Error("pull failed", zap.String("model", name), zap.String("error", st.Error))
			return false
		}
		c.logger.Debug("pull progress",
			zap.String("model", name),
			zap.String("status", st.Status),
			zap.Int64("completed", st.Completed),
			zap.Int64("total", st.Total))
	}

	c.cache.Purge()
	c.logger.Info("model pulled", zap.String("model", name))
	return true
}

// ensureModel resolves name and pulls it when missing and allowed.
func (c *OllamaClient) ensureModel(ctx context.Context, name string) (string, error) {
	a := c.availability(ctx, name)
	if a.Available {
		return a.Resolved, nil
	}
	if !c.cfg.AutoPull {
		return "", fmt.Errorf("%w: %s", domain.ErrModelUnavailable, name)
	}
	if !c.PullModel(ctx, name) {
		return "", fmt.Errorf("%w: %s could not be pulled", domain.ErrModelUnavailable, name)
	}
	return c.ResolveModelName(ctx, name), nil
}

type generateOptions struct {
	NumPredict    int     `json:"num_predict,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
}

type generateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	Images  []string         `json:"images,omitempty"`
	Stream  bool             `json:"stream"`
	Options *generateOptions `json:"options,omitempty"`
	Stop    []string         `json:"stop,omitempty"`
	Think   *bool            `json:"think,omitempty"`
}

type generateChunk struct {
	Response        string `json:"response"`
	Thinking        string `json:"thinking"`
	Content         string `json:"content"`
	Text            string `json:"text"`
	Model           string `json:"model"`
	Done            bool   `json:"done"`
	EvalCount       int    `json:"eval_count"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	TotalDuration   int64  `json:"total_duration"`
	LoadDuration    int64  `json:"load_duration"`
	Error           string `json:"error"`
}

func (ch generateChunk) token() string {
	switch {
	case ch.Response != "":
		return ch.Response
	case ch.Thinking != "":
		return ch.Thinking
	case ch.Content != "":
		return ch.Content
	default:
		return ch.Text
	}
}

func (ch generateChunk) mergeInto(r *domain.GenerateResult) {
	if ch.Model != "" {
		r.Model = ch.Model
	}
	if ch.EvalCount > 0 {
		r.EvalCount = ch.EvalCount
	}
	if ch.PromptEvalCount > 0 {
		r.PromptEvalCount = ch.PromptEvalCount
	}
	if ch.TotalDuration > 0 {
		r.TotalDuration = time.Duration(ch.TotalDuration)
	}
	if ch.LoadDuration > 0 {
		r.LoadDuration = time.Duration(ch.LoadDuration)
	}
}

func buildOptions(opts domain.GenerateOptions) *generateOptions {
	o := &generateOptions{
		NumPredict:    opts.MaxTokens,
		Temperature:   opts.Temperature,
		TopP:          opts.TopP,
		RepeatPenalty: opts.RepeatPenalty,
	}
	if *o == (generateOptions{}) {
		return nil
	}
	return o
}

// GenerateText runs a text-only prompt.
func (c *OllamaClient) GenerateText(ctx context.Context, prompt, model string, opts domain.GenerateOptions) (*domain.GenerateResult, error) {
	resolved, err := c.ensureModel(ctx, model)
	if err != nil {
		return nil, err
	}

	return c.generate(ctx, generateRequest{
		Model:   resolved,
		Prompt:  prompt,
		Stream:  opts.Stream,
		Options: buildOptions(opts),
		Stop:    stopSequences,
	}, opts)
}

// GenerateVision runs a prompt against one image. A corrupt image fails
// the call with domain.ErrCorruptImage.
func (c *OllamaClient) GenerateVision(ctx context.Context, imagePath, prompt, model string, opts domain.GenerateOptions) (*domain.GenerateResult, error) {
	encoded, err := EncodeImage(imagePath, c.cfg.MaxImageSize, c.cfg.MaxImageSize)
	if err != nil {
		return nil, err
	}
	return c.generateVision(ctx, []string{encoded}, prompt, model, opts)
}

// GenerateVisionMulti runs a prompt against several images. Corrupt images
// are skipped; domain.ErrNoUsableImages is returned when none remain.
func (c *OllamaClient) GenerateVisionMulti(ctx context.Context, imagePaths []string, prompt, model string, opts domain.GenerateOptions) (*domain.GenerateResult, error) {
	images := make([]string, 0, len(imagePaths))
	for _, path := range imagePaths {
		encoded, err := EncodeImage(path, c.cfg.MaxImageSize, c.cfg.MaxImageSize)
		if err != nil {
			c.logger.Warn("skipping unusable image", zap.String("path", path), zap.Error(err))
			continue
		}
		images = append(images, encoded)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: %d given", domain.ErrNoUsableImages, len(imagePaths))
	}
	return c.generateVision(ctx, images, prompt, model, opts)
}

func (c *OllamaClient) generateVision(ctx context.Context, images []string, prompt, model string, opts domain.GenerateOptions) (*domain.GenerateResult, error) {
	resolved, err := c.ensureModel(ctx, model)
	if err != nil {
		return nil, err
	}

	think := false
	return c.generate(ctx, generateRequest{
		Model:   resolved,
		Prompt:  prompt,
		Images:  images,
		Stream:  opts.Stream,
		Options: buildOptions(opts),
		Think:   &think,
	}, opts)
}

func (c *OllamaClient) generate(ctx context.Context, req generateRequest, opts domain.GenerateOptions) (*domain.GenerateResult, error) {
	result, err := c.post(ctx, req, opts)
	if err != nil {
		return nil, err
	}

	// some vision models return an empty single-shot body while having
	// generated tokens; the streamed form carries them
	if !req.Stream && result.Text == "" && result.EvalCount > 0 {
		c.logger.Warn("empty response with tokens generated, retrying streamed",
			zap.String("model", req.Model),
			zap.Int("eval_count", result.EvalCount))
		req.Stream = true
		return c.post(ctx, req, opts)
	}
	return result, nil
}

func (c *OllamaClient) post(ctx context.Context, req generateRequest, opts domain.GenerateOptions) (*domain.GenerateResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	result := &domain.GenerateResult{Model: req.Model}
	if req.Stream {
		err = c.readStream(ctx, resp.Body, result, opts.CancelCheck)
	} else {
		err = c.readSingle(resp.Body, result)
	}
	if err != nil {
		return nil, err
	}

	if result.TotalDuration == 0 {
		result.TotalDuration = time.Since(start)
	}
	if c.cfg.Debug {
		c.logger.Debug("generation complete",
			zap.String("model", result.Model),
			zap.Bool("stream", req.Stream),
			zap.Int("images", len(req.Images)),
			zap.Int("eval_count", result.EvalCount),
			zap.Int64("duration_ms", result.DurationMs()))
	}
	return result, nil
}

func (c *OllamaClient) readSingle(body io.Reader, result *domain.GenerateResult) error {
	var chunk generateChunk
	if err := json.NewDecoder(body).Decode(&chunk); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if chunk.Error != "" {
		return fmt.Errorf("ollama error: %s", chunk.Error)
	}
	result.Text = chunk.token()
	chunk.mergeInto(result)
	return nil
}

func (c *OllamaClient) readStream(ctx context.Context, body io.Reader, result *domain.GenerateResult, cancelCheck func() bool) error {
	var text strings.Builder
	reader := bufio.NewReader(body)

	for {
		line, readErr := reader.ReadBytes('\n')

		if cancelCheck != nil && cancelCheck() {
			c.logger.Debug("generation cancelled by caller", zap.Int("chars", text.Len()))
			return domain.ErrCancelled
		}

		if line = bytes.TrimSpace(line); len(line) > 0 {
			var chunk generateChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				c.logger.Debug("skipping malformed stream line", zap.ByteString("line", line))
			} else {
				if chunk.Error != "" {
					return fmt.Errorf("ollama error: %s", chunk.Error)
				}
				text.WriteString(chunk.token())
				chunk.mergeInto(result)
				if chunk.Done {
					break
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
			}
			return fmt.Errorf("failed to read stream: %w", readErr)
		}
	}

	result.Text = text.String()
	return nil
}

var _ domain.VLMClient = (*OllamaClient)(nil)
