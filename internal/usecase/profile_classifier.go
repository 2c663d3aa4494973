package usecase

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
	"github.com/eliteGoblin/focusd/lockin/internal/policy"
)

// DefaultChunkSize is how many catalog entries go into one prompt.
const DefaultChunkSize = 30

var classificationLineRe = regexp.MustCompile(`(?im)^\s*[-*]?\s*([^:\n]+\.exe)\s*:\s*(Work|Mixed|Entertainment)\s*$`)

// ProgressFunc reports chunk progress of a long classification run.
type ProgressFunc func(done, total int)

// ProfileClassifier builds a per-profile classification table by asking the
// model to sort the process catalog according to the user's answers.
type ProfileClassifier struct {
	client    domain.VLMClient
	model     string
	chunkSize int
	logger    *zap.Logger
}

// NewProfileClassifier creates a profile classifier.
func NewProfileClassifier(client domain.VLMClient, model string, logger *zap.Logger) *ProfileClassifier {
	if model == "" {
		model = DefaultModel
	}
	return &ProfileClassifier{
		client:    client,
		model:     model,
		chunkSize: DefaultChunkSize,
		logger:    logger,
	}
}

// Classify returns a table covering every catalog entry the model
// classified. Failed chunks are logged and skipped; the call only fails if
// every chunk failed.
func (c *ProfileClassifier) Classify(
	ctx context.Context,
	responses map[string]string,
	catalog []domain.CatalogEntry,
	progress ProgressFunc,
) (*domain.ClassificationTable, error) {
	table := &domain.ClassificationTable{MonitorTimeout: policy.DefaultMonitorTimeout}
	if len(catalog) == 0 {
		return table, nil
	}

	chunks := chunkCatalog(catalog, c.chunkSize)
	failed := 0

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.client.GenerateText(ctx, profileClassificationPrompt(responses, chunk), c.model, domain.GenerateOptions{
			MaxTokens:   40 * len(chunk),
			Temperature: 0.2,
		})
		if err != nil {
			failed++
			c.logger.Warn("profile classification chunk failed",
				zap.Int("chunk", i+1),
				zap.Int("total", len(chunks)),
				zap.Error(err))
		} else {
			assigned := ParseClassificationLines(resp.Text, chunk)
			mergeClassifications(table, assigned)
			c.logger.Debug("profile classification chunk done",
				zap.Int("chunk", i+1),
				zap.Int("classified", len(assigned)))
		}

		if progress != nil {
			progress(i+1, len(chunks))
		}
	}

	if failed == len(chunks) {
		return nil, errors.New("all classification requests failed")
	}
	return table, nil
}

// ParseClassificationLines reads "name.exe: Category" lines, keeping only
// names that belong to chunk. The first answer per name wins.
func ParseClassificationLines(text string, chunk []domain.CatalogEntry) map[string]domain.Classification {
	allowed := make(map[string]bool, len(chunk))
	for _, e := range chunk {
		allowed[strings.ToLower(e.Exe)] = true
	}

	out := make(map[string]domain.Classification)
	for _, m := range classificationLineRe.FindAllStringSubmatch(text, -1) {
		exe := strings.ToLower(strings.TrimSpace(m[1]))
		if !allowed[exe] {
			continue
		}
		if _, seen := out[exe]; seen {
			continue
		}
		switch strings.ToLower(m[2]) {
		case "work":
			out[exe] = domain.ClassWork
		case "entertainment":
			out[exe] = domain.ClassEntertainment
		case "mixed":
			out[exe] = domain.ClassMixed
		}
	}
	return out
}

func mergeClassifications(table *domain.ClassificationTable, assigned map[string]domain.Classification) {
	names := make([]string, 0, len(assigned))
	for exe := range assigned {
		names = append(names, exe)
	}
	sort.Strings(names)

	for _, exe := range names {
		switch assigned[exe] {
		case domain.ClassWork:
			table.WorkProcesses = append(table.WorkProcesses, exe)
		case domain.ClassEntertainment:
			table.EntertainmentProcesses = append(table.EntertainmentProcesses, exe)
		case domain.ClassMixed:
			table.MixedProcesses = append(table.MixedProcesses, exe)
		}
	}
}

func chunkCatalog(catalog []domain.CatalogEntry, size int) [][]domain.CatalogEntry {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][]domain.CatalogEntry
	for start := 0; start < len(catalog); start += size {
		end := start + size
		if end > len(catalog) {
			end = len(catalog)
		}
		chunks = append(chunks, catalog[start:end])
	}
	return chunks
}
