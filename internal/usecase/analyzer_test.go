package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

func captionReply(text string) *domain.GenerateResult {
	return &domain.GenerateResult{
		Text:            text,
		Model:           "ministral-3:8b",
		EvalCount:       120,
		PromptEvalCount: 900,
		TotalDuration:   2 * time.Second,
	}
}

func newTestAnalyzer(client domain.VLMClient) *TwoStageAnalyzer {
	cfg := DefaultAnalyzerConfig()
	cfg.Stage1RepeatPenalty = 1.1
	return NewAnalyzer(client, cfg, zap.NewNop())
}

func TestAnalyzer_HappyPath(t *testing.T) {
	client := &mockVLMClient{
		visionReply: captionReply(`{"desc_image1": "VS Code with a Go file", "desc_image2": "Go docs in Chrome"}`),
		textReplies: []string{`{"Reasoning": "coding", "Distracted": false, "Confidence": 95}`},
	}
	a := newTestAnalyzer(client)

	result := a.Analyze(context.Background(), domain.AnalyzeRequest{
		ImagePaths:        []string{"a.png", "b.png"},
		WorkTopic:         "Go development",
		AdditionalContext: "Process: code.exe",
	})

	assert.Empty(t, result.Errors)
	assert.False(t, result.Cancelled)
	assert.Equal(t, 1, client.multiCalls)
	assert.Equal(t, 0, client.visionCalls)
	assert.True(t, client.visionOpts.Stream)
	assert.Equal(t, 1.1, client.visionOpts.RepeatPenalty)

	assert.Equal(t, []string{"VS Code with a Go file", "Go docs in Chrome"}, result.Stage1.Descriptions)
	assert.Equal(t, 120, result.Stage1.EvalCount)
	assert.Equal(t, 900, result.Stage1.PromptEvalCount)
	assert.Equal(t, int64(2000), result.Stage1.DurationMs)

	require.True(t, result.HasVerdict())
	assert.False(t, *result.Stage2.Distracted)
	assert.Equal(t, 95, *result.Stage2.Confidence)
	assert.Equal(t, "coding", *result.Stage2.Reasoning)
	assert.Equal(t, int64(1500), result.Stage2.DurationMs)

	require.Len(t, client.textCalls, 1)
	stage2 := client.textCalls[0]
	assert.Contains(t, stage2.prompt, "Go development")
	assert.Contains(t, stage2.prompt, "1. VS Code with a Go file")
	assert.Contains(t, stage2.prompt, "Process: code.exe")
	assert.True(t, stage2.opts.Stream)
	assert.Equal(t, 400, stage2.opts.MaxTokens)
	assert.Equal(t, 0.3, stage2.opts.Temperature)
	assert.Equal(t, 0.9, stage2.opts.TopP)
}

func TestAnalyzer_SingleImageUsesVision(t *testing.T) {
	client := &mockVLMClient{
		visionReply: captionReply(`{"desc_image1": "A Steam library"}`),
		textReplies: []string{`{"Reasoning": "gaming", "Distracted": true, "Confidence": 97}`},
	}
	a := newTestAnalyzer(client)

	result := a.Analyze(context.Background(), domain.AnalyzeRequest{ImagePaths: []string{"only.png"}, WorkTopic: "thesis"})

	assert.Equal(t, 1, client.visionCalls)
	assert.Equal(t, 0, client.multiCalls)
	assert.True(t, result.IsDistracted(60))
	assert.False(t, result.IsDistracted(98))
}

func TestAnalyzer_NoImages(t *testing.T) {
	client := &mockVLMClient{}
	result := newTestAnalyzer(client).Analyze(context.Background(), domain.AnalyzeRequest{})

	assert.Len(t, result.Errors, 1)
	assert.Equal(t, 0, client.visionCalls+client.multiCalls)
}

func TestAnalyzer_Stage1FailureSkipsStage2(t *testing.T) {
	client := &mockVLMClient{visionErr: domain.ErrNoUsableImages}
	result := newTestAnalyzer(client).Analyze(context.Background(), domain.AnalyzeRequest{ImagePaths: []string{"a.png", "b.png"}})

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "stage 1")
	assert.Empty(t, client.textCalls)
	assert.False(t, result.HasVerdict())
}

func TestAnalyzer_Stage1RegexRecovery(t *testing.T) {
	client := &mockVLMClient{
		visionReply: captionReply(`{"desc_image1": "YouTube gameplay video", "desc_image2": "truncated`),
		textReplies: []string{`{"Reasoning": "video game", "Distracted": true, "Confidence": 80}`},
	}
	result := newTestAnalyzer(client).Analyze(context.Background(), domain.AnalyzeRequest{ImagePaths: []string{"a.png", "b.png"}})

	assert.Equal(t, []string{"YouTube gameplay video"}, result.Stage1.Descriptions)
	require.Len(t, result.Errors, 1, "decode failure is recorded even when captions are recovered")
	require.True(t, result.HasVerdict())
	assert.True(t, *result.Stage2.Distracted)
}

func TestAnalyzer_Cancelled(t *testing.T) {
	client := &mockVLMClient{visionErr: fmt.Errorf("stream aborted: %w", domain.ErrCancelled)}
	result := newTestAnalyzer(client).Analyze(context.Background(), domain.AnalyzeRequest{ImagePaths: []string{"a.png"}})

	assert.True(t, result.Cancelled)
	assert.Empty(t, result.Errors, "cancellation is not a failure")
}

func TestAnalyzer_CancelledInStage2(t *testing.T) {
	client := &mockVLMClient{
		visionReply: captionReply(`{"desc_image1": "Reddit"}`),
		textErrs:    []error{domain.ErrCancelled},
	}
	result := newTestAnalyzer(client).Analyze(context.Background(), domain.AnalyzeRequest{ImagePaths: []string{"a.png"}})

	assert.True(t, result.Cancelled)
	assert.Equal(t, []string{"Reddit"}, result.Stage1.Descriptions)
	assert.False(t, result.HasVerdict())
}

func TestAnalyzer_ReparseRecovers(t *testing.T) {
	client := &mockVLMClient{
		visionReply: captionReply(`{"desc_image1": "Discord chat"}`),
		textReplies: []string{
			`Reasoning: chatting with friends. Distracted: yes`,
			"```json\n{\"Reasoning\": \"chatting\", \"Distracted\": true, \"Confidence\": 77}\n```",
		},
	}
	result := newTestAnalyzer(client).Analyze(context.Background(), domain.AnalyzeRequest{ImagePaths: []string{"a.png"}})

	require.Len(t, client.textCalls, 2)
	reparse := client.textCalls[1]
	assert.False(t, reparse.opts.Stream)
	assert.Equal(t, 200, reparse.opts.MaxTokens)
	assert.Equal(t, 0.1, reparse.opts.Temperature)
	assert.Contains(t, reparse.prompt, "chatting with friends")

	require.True(t, result.HasVerdict())
	assert.True(t, *result.Stage2.Distracted)
	assert.Equal(t, 77, *result.Stage2.Confidence)
	assert.Equal(t, "Reasoning: chatting with friends. Distracted: yes", result.Stage2.RawResponse)
	assert.Len(t, result.Errors, 1)
}

func TestAnalyzer_LineProtocolFallback(t *testing.T) {
	client := &mockVLMClient{
		visionReply: captionReply(`{"desc_image1": "Netflix"}`),
		textReplies: []string{
			"The user is streaming a TV show.\n-Final Conclusion: Distracted",
			"sorry, I cannot do that",
		},
	}
	result := newTestAnalyzer(client).Analyze(context.Background(), domain.AnalyzeRequest{ImagePaths: []string{"a.png"}})

	require.True(t, result.HasVerdict())
	assert.True(t, *result.Stage2.Distracted)
	assert.Equal(t, DefaultConfidence, *result.Stage2.Confidence)
	assert.Len(t, result.Errors, 2)
}

func TestAnalyzer_LineProtocolScrapedConfidence(t *testing.T) {
	client := &mockVLMClient{
		visionReply: captionReply(`{"desc_image1": "IDE"}`),
		textReplies: []string{
			"Clearly coding, 93% confidence.\n-Final Conclusion: Working",
			"still not json",
		},
	}
	result := newTestAnalyzer(client).Analyze(context.Background(), domain.AnalyzeRequest{ImagePaths: []string{"a.png"}})

	require.True(t, result.HasVerdict())
	assert.False(t, *result.Stage2.Distracted)
	assert.Equal(t, 93, *result.Stage2.Confidence)
}

func TestAnalyzer_BrokenJSONKeepsVerdict(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		confidence int
	}{
		{
			name:       "trailing comma",
			reply:      `{"Reasoning": "user is editing Go code", "Distracted": false, "Confidence": 90,}`,
			confidence: 90,
		},
		{
			name:       "cut off mid-object",
			reply:      `{"Reasoning": "user is editing Go code", "Distracted": false, "Confidence": 9`,
			confidence: 9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockVLMClient{
				visionReply: captionReply(`{"desc_image1": "GoLand with main.go"}`),
				textReplies: []string{tt.reply, "sorry"},
			}
			result := newTestAnalyzer(client).Analyze(context.Background(), domain.AnalyzeRequest{ImagePaths: []string{"a.png"}})

			require.True(t, result.HasVerdict())
			assert.False(t, *result.Stage2.Distracted)
			assert.Equal(t, tt.confidence, *result.Stage2.Confidence)
			assert.False(t, result.IsDistracted(60))
		})
	}
}

func TestAnalyzer_BrokenJSONDistracted(t *testing.T) {
	client := &mockVLMClient{
		visionReply: captionReply(`{"desc_image1": "Netflix"}`),
		textReplies: []string{`{"Reasoning": "working on nothing, watching a show", "Distracted": "yes", "Confidence": 80,}`, "no"},
	}
	result := newTestAnalyzer(client).Analyze(context.Background(), domain.AnalyzeRequest{ImagePaths: []string{"a.png"}})

	require.True(t, result.HasVerdict())
	assert.True(t, *result.Stage2.Distracted)
	assert.Equal(t, 80, *result.Stage2.Confidence)
}

func TestAnalyzer_NothingRecoverable(t *testing.T) {
	client := &mockVLMClient{
		visionReply: captionReply(`{"desc_image1": "A blank desktop"}`),
		textReplies: []string{"hmm", "hmm again"},
	}
	result := newTestAnalyzer(client).Analyze(context.Background(), domain.AnalyzeRequest{ImagePaths: []string{"a.png"}})

	assert.False(t, result.HasVerdict())
	assert.Len(t, result.Errors, 3)
}

func TestAnalyzer_Stage2RequestError(t *testing.T) {
	client := &mockVLMClient{
		visionReply: captionReply(`{"desc_image1": "Terminal"}`),
		textErrs:    []error{errors.New("connection refused")},
	}
	result := newTestAnalyzer(client).Analyze(context.Background(), domain.AnalyzeRequest{ImagePaths: []string{"a.png"}})

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "connection refused")
	assert.Equal(t, []string{"Terminal"}, result.Stage1.Descriptions)
}

func TestAnalyzer_MissingConfidenceDefaults(t *testing.T) {
	client := &mockVLMClient{
		visionReply: captionReply(`{"desc_image1": "Twitter"}`),
		textReplies: []string{`{"Reasoning": "scrolling social media", "Distracted": true}`},
	}
	result := newTestAnalyzer(client).Analyze(context.Background(), domain.AnalyzeRequest{ImagePaths: []string{"a.png"}})

	require.NotNil(t, result.Stage2.Confidence)
	assert.Equal(t, DefaultConfidence, *result.Stage2.Confidence)
}

func TestCaptionPrompt(t *testing.T) {
	assert.Contains(t, captionPrompt(1), `"desc_image1"`)
	multi := captionPrompt(3)
	assert.Contains(t, multi, `"desc_image3"`)
	assert.Contains(t, multi, "3 screenshots")
}
