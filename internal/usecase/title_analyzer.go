package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// TitleAnalyzer asks a text model whether a window title alone looks like
// a distraction. It is a cheap pre-check before screenshots are taken.
type TitleAnalyzer struct {
	client domain.VLMClient
	model  string
	logger *zap.Logger
}

// NewTitleAnalyzer creates a title analyzer.
func NewTitleAnalyzer(client domain.VLMClient, model string, logger *zap.Logger) *TitleAnalyzer {
	if model == "" {
		model = DefaultModel
	}
	return &TitleAnalyzer{client: client, model: model, logger: logger}
}

// Analyze returns VerdictDistracted or VerdictNormal. Any failure or
// unexpected reply degrades to VerdictNormal.
func (t *TitleAnalyzer) Analyze(ctx context.Context, title, objectives, additionalContext string) domain.Verdict {
	if strings.TrimSpace(title) == "" {
		return domain.VerdictNormal
	}

	resp, err := t.client.GenerateText(ctx, titlePrompt(title, objectives, additionalContext), t.model, domain.GenerateOptions{
		MaxTokens:   10,
		Temperature: 0.3,
	})
	if err != nil {
		t.logger.Warn("title analysis failed", zap.String("title", title), zap.Error(err))
		return domain.VerdictNormal
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Text))
	switch {
	case strings.HasPrefix(answer, "distracted"):
		return domain.VerdictDistracted
	case strings.HasPrefix(answer, "normal"):
		return domain.VerdictNormal
	default:
		t.logger.Debug("unexpected title verdict", zap.String("answer", resp.Text))
		return domain.VerdictNormal
	}
}
