package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// textCall records one GenerateText invocation.
type textCall struct {
	prompt string
	opts   domain.GenerateOptions
}

// mockVLMClient implements domain.VLMClient with scripted replies.
type mockVLMClient struct {
	visionReply *domain.GenerateResult
	visionErr   error
	visionCalls int
	multiCalls  int
	lastImages  []string
	visionOpts  domain.GenerateOptions

	textReplies []string
	textErrs    []error
	textCalls   []textCall
}

func (m *mockVLMClient) ListModels(ctx context.Context) ([]domain.ModelInfo, error) {
	return nil, nil
}

func (m *mockVLMClient) CheckModelAvailable(ctx context.Context, name string) bool {
	return true
}

func (m *mockVLMClient) ResolveModelName(ctx context.Context, name string) string {
	return name
}

func (m *mockVLMClient) PullModel(ctx context.Context, name string) bool {
	return true
}

func (m *mockVLMClient) GenerateText(ctx context.Context, prompt, model string, opts domain.GenerateOptions) (*domain.GenerateResult, error) {
	i := len(m.textCalls)
	m.textCalls = append(m.textCalls, textCall{prompt: prompt, opts: opts})

	if i < len(m.textErrs) && m.textErrs[i] != nil {
		return nil, m.textErrs[i]
	}
	if i >= len(m.textReplies) {
		return nil, errors.New("no scripted reply")
	}
	return &domain.GenerateResult{
		Text:          m.textReplies[i],
		Model:         model,
		EvalCount:     42,
		TotalDuration: 1500 * time.Millisecond,
	}, nil
}

func (m *mockVLMClient) GenerateVision(ctx context.Context, imagePath, prompt, model string, opts domain.GenerateOptions) (*domain.GenerateResult, error) {
	m.visionCalls++
	m.lastImages = []string{imagePath}
	m.visionOpts = opts
	return m.visionReply, m.visionErr
}

func (m *mockVLMClient) GenerateVisionMulti(ctx context.Context, imagePaths []string, prompt, model string, opts domain.GenerateOptions) (*domain.GenerateResult, error) {
	m.multiCalls++
	m.lastImages = imagePaths
	m.visionOpts = opts
	return m.visionReply, m.visionErr
}

// mockDistractionCache implements domain.DistractionCache in memory.
type mockDistractionCache struct {
	entries map[domain.DistractionKey]bool
	addErr  error
}

func newMockDistractionCache() *mockDistractionCache {
	return &mockDistractionCache{entries: make(map[domain.DistractionKey]bool)}
}

func (m *mockDistractionCache) IsDistracting(process, title string) bool {
	return m.entries[domain.NewDistractionKey(process, title)]
}

func (m *mockDistractionCache) Add(process, title string) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.entries[domain.NewDistractionKey(process, title)] = true
	return nil
}

func (m *mockDistractionCache) Remove(process, title string) error {
	delete(m.entries, domain.NewDistractionKey(process, title))
	return nil
}

func (m *mockDistractionCache) Clear() error {
	m.entries = make(map[domain.DistractionKey]bool)
	return nil
}

func (m *mockDistractionCache) Count() int {
	return len(m.entries)
}

func (m *mockDistractionCache) Entries() []domain.DistractionKey {
	keys := make([]domain.DistractionKey, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

var _ domain.VLMClient = (*mockVLMClient)(nil)
var _ domain.DistractionCache = (*mockDistractionCache)(nil)
