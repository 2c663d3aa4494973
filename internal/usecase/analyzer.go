package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// DefaultModel is the vision model used when none is configured.
const DefaultModel = "ministral-3:8b"

// AnalyzerConfig holds the generation settings of both stages.
type AnalyzerConfig struct {
	Model               string
	Stage1MaxTokens     int
	Stage1Temperature   float64
	Stage1RepeatPenalty float64 // 0 = not sent
	Stage2MaxTokens     int
	Stage2Temperature   float64
	Stage2TopP          float64
	ReparseMaxTokens    int
	ReparseTemperature  float64
}

// DefaultAnalyzerConfig returns default analyzer settings.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		Model:              DefaultModel,
		Stage1MaxTokens:    512,
		Stage1Temperature:  0.7,
		Stage2MaxTokens:    400,
		Stage2Temperature:  0.3,
		Stage2TopP:         0.9,
		ReparseMaxTokens:   200,
		ReparseTemperature: 0.1,
	}
}

// TwoStageAnalyzer implements domain.Analyzer.
// Stage 1 captions the screenshots, stage 2 judges the captions.
// Malformed model output never escapes as an error: it is recorded in
// AnalysisResult.Errors and met with a fallback.
type TwoStageAnalyzer struct {
	client domain.VLMClient
	config AnalyzerConfig
	logger *zap.Logger
}

// NewAnalyzer creates a two-stage analyzer.
func NewAnalyzer(client domain.VLMClient, config AnalyzerConfig, logger *zap.Logger) *TwoStageAnalyzer {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	return &TwoStageAnalyzer{
		client: client,
		config: config,
		logger: logger,
	}
}

// Analyze runs both stages over req.ImagePaths.
func (a *TwoStageAnalyzer) Analyze(ctx context.Context, req domain.AnalyzeRequest) *domain.AnalysisResult {
	result := &domain.AnalysisResult{
		Errors:    make([]string, 0),
		StartedAt: time.Now(),
	}

	if len(req.ImagePaths) == 0 {
		result.Errors = append(result.Errors, "stage 1: no screenshots to analyze")
		return result
	}

	if err := a.describe(ctx, req, result); err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			result.Cancelled = true
			a.logger.Info("analysis cancelled during stage 1")
			return result
		}
		result.Errors = append(result.Errors, fmt.Sprintf("stage 1: %v", err))
		a.logger.Warn("stage 1 failed", zap.Error(err))
	}

	if len(result.Stage1.Descriptions) == 0 {
		return result
	}

	if err := a.judge(ctx, req, result); err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			result.Cancelled = true
			a.logger.Info("analysis cancelled during stage 2")
			return result
		}
		result.Errors = append(result.Errors, fmt.Sprintf("stage 2: %v", err))
		a.logger.Warn("stage 2 failed", zap.Error(err))
	}

	return result
}

// describe runs stage 1. Caption parse problems are recorded in result and
// only request failures are returned.
func (a *TwoStageAnalyzer) describe(ctx context.Context, req domain.AnalyzeRequest, result *domain.AnalysisResult) error {
	opts := domain.GenerateOptions{
		Stream:        true,
		MaxTokens:     a.config.Stage1MaxTokens,
		Temperature:   a.config.Stage1Temperature,
		RepeatPenalty: a.config.Stage1RepeatPenalty,
		CancelCheck:   req.CancelCheck,
	}
	prompt := captionPrompt(len(req.ImagePaths))

	var (
		resp *domain.GenerateResult
		err  error
	)
	if len(req.ImagePaths) == 1 {
		resp, err = a.client.GenerateVision(ctx, req.ImagePaths[0], prompt, a.config.Model, opts)
	} else {
		resp, err = a.client.GenerateVisionMulti(ctx, req.ImagePaths, prompt, a.config.Model, opts)
	}
	if err != nil {
		return err
	}

	result.Stage1.RawResponse = resp.Text
	result.Stage1.Model = resp.Model
	result.Stage1.EvalCount = resp.EvalCount
	result.Stage1.PromptEvalCount = resp.PromptEvalCount
	result.Stage1.DurationMs = resp.DurationMs()

	captions, err := ParseCaptions(resp.Text, len(req.ImagePaths))
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("stage 1: %v", err))
		a.logger.Warn("stage 1 response malformed",
			zap.Int("recovered", len(captions)),
			zap.Error(err))
	}
	result.Stage1.Descriptions = captions

	a.logger.Debug("stage 1 complete",
		zap.Int("images", len(req.ImagePaths)),
		zap.Int("descriptions", len(captions)),
		zap.Int64("duration_ms", result.Stage1.DurationMs))
	return nil
}

// judge runs stage 2 with one reparse retry and a line-protocol fallback.
func (a *TwoStageAnalyzer) judge(ctx context.Context, req domain.AnalyzeRequest, result *domain.AnalysisResult) error {
	prompt := verdictPrompt(result.Stage1.Descriptions, req.WorkTopic, req.AdditionalContext)

	resp, err := a.client.GenerateText(ctx, prompt, a.config.Model, domain.GenerateOptions{
		Stream:      true,
		MaxTokens:   a.config.Stage2MaxTokens,
		Temperature: a.config.Stage2Temperature,
		TopP:        a.config.Stage2TopP,
		CancelCheck: req.CancelCheck,
	})
	if err != nil {
		return err
	}

	result.Stage2.RawResponse = resp.Text
	result.Stage2.Model = resp.Model
	result.Stage2.EvalCount = resp.EvalCount
	result.Stage2.DurationMs = resp.DurationMs()

	if strings.TrimSpace(resp.Text) == "" {
		return errors.New("empty verdict response")
	}

	verdict, err := ParseVerdict(resp.Text)
	if err == nil {
		applyVerdict(result, verdict)
		return nil
	}

	result.Errors = append(result.Errors, fmt.Sprintf("stage 2: %v", err))
	a.logger.Warn("stage 2 JSON malformed, reparsing", zap.Error(err))

	verdict, err = a.reparse(ctx, resp.Text, req.CancelCheck)
	if err == nil {
		applyVerdict(result, verdict)
		return nil
	}
	if errors.Is(err, domain.ErrCancelled) {
		return err
	}
	result.Errors = append(result.Errors, fmt.Sprintf("stage 2: reparse failed: %v", err))

	distracted, ok := ScrapeDistracted(resp.Text)
	if !ok {
		distracted, ok = ParseConclusion(resp.Text)
	}
	if !ok {
		return errors.New("no verdict could be recovered from response")
	}

	confidence, found := ExtractConfidence(resp.Text)
	if !found {
		confidence = DefaultConfidence
	}
	reasoning := strings.TrimSpace(resp.Text)
	result.Stage2.Distracted = &distracted
	result.Stage2.Confidence = &confidence
	result.Stage2.Reasoning = &reasoning

	a.logger.Info("stage 2 verdict recovered from plain text",
		zap.Bool("distracted", distracted),
		zap.Int("confidence", confidence))
	return nil
}

func (a *TwoStageAnalyzer) reparse(ctx context.Context, raw string, cancel func() bool) (*VerdictParse, error) {
	resp, err := a.client.GenerateText(ctx, reparsePrompt(raw), a.config.Model, domain.GenerateOptions{
		Stream:      false,
		MaxTokens:   a.config.ReparseMaxTokens,
		Temperature: a.config.ReparseTemperature,
		TopP:        a.config.Stage2TopP,
		CancelCheck: cancel,
	})
	if err != nil {
		return nil, err
	}
	return ParseVerdict(resp.Text)
}

// applyVerdict stores a parsed verdict. A missing confidence is scraped
// from the reasoning, else DefaultConfidence.
func applyVerdict(result *domain.AnalysisResult, v *VerdictParse) {
	distracted := v.Distracted
	result.Stage2.Distracted = &distracted
	result.Stage2.Reasoning = v.Reasoning

	if v.Confidence != nil {
		c := *v.Confidence
		result.Stage2.Confidence = &c
		return
	}
	c := DefaultConfidence
	if v.Reasoning != nil {
		if scraped, ok := ExtractConfidence(*v.Reasoning); ok {
			c = scraped
		}
	}
	result.Stage2.Confidence = &c
}

// Ensure TwoStageAnalyzer implements domain.Analyzer.
var _ domain.Analyzer = (*TwoStageAnalyzer)(nil)
