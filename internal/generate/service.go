// Package generate turns harvested posts into new content via an AI text
// engine and records every result in the generation history.
package generate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/feedforge/harvester/internal/harvest"
	"github.com/feedforge/harvester/internal/metrics"
	"github.com/feedforge/harvester/internal/sessions"
)

const (
	// Context sizes mirror the dashboard defaults: a scoped session
	// contributes its ten best posts, the unscoped corpus its three best.
	sessionContextLimit = 10
	globalContextLimit  = 3
)

// Service renders prompts, invokes the generator, and persists history.
type Service struct {
	catalog *sessions.Catalog
	history harvest.HistoryStore
	blobs   harvest.BlobStore
	gen     harvest.Generator
	ids     harvest.IDGenerator
	clock   harvest.Clock
	logger  *zap.Logger
}

// NewService wires the generation pipeline. A nil logger is replaced with
// a no-op logger.
func NewService(
	catalog *sessions.Catalog,
	history harvest.HistoryStore,
	blobs harvest.BlobStore,
	gen harvest.Generator,
	ids harvest.IDGenerator,
	clock harvest.Clock,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		catalog: catalog,
		history: history,
		blobs:   blobs,
		gen:     gen,
		ids:     ids,
		clock:   clock,
		logger:  logger,
	}
}

// Generate produces one post. Trend mode conditions the prompt on the best
// posts of the selected session; remix mode restructures the supplied
// reference caption (and image) for a new topic. The result is recorded in
// the history before it is returned.
func (s *Service) Generate(ctx context.Context, req harvest.GenerationRequest) (harvest.GenerationResult, error) {
	prompt, err := s.buildPrompt(ctx, req)
	if err != nil {
		return harvest.GenerationResult{}, err
	}

	raw, err := s.gen.Generate(ctx, prompt, req.ReferenceImage)
	if err != nil {
		return harvest.GenerationResult{}, fmt.Errorf("generate content: %w", err)
	}
	result := splitSections(raw)
	if result.Content == "" {
		return harvest.GenerationResult{}, fmt.Errorf("generator returned empty content")
	}

	id, err := s.ids.NewID()
	if err != nil {
		return harvest.GenerationResult{}, fmt.Errorf("assign history id: %w", err)
	}

	imageURI := ""
	if len(req.ReferenceImage) > 0 && s.blobs != nil {
		uri, putErr := s.blobs.PutObject(ctx, "reference/"+id, "image/jpeg", req.ReferenceImage)
		if putErr != nil {
			// The generated text is still good; losing the reference
			// artifact is not worth failing the request over.
			s.logger.Warn("failed to store reference image", zap.String("entry_id", id), zap.Error(putErr))
		} else {
			imageURI = uri
		}
	}

	entry := harvest.HistoryEntry{
		ID:        id,
		Mode:      string(req.Mode),
		Topic:     req.Topic,
		Content:   result.Content,
		ImageURI:  imageURI,
		CreatedAt: s.clock.Now(),
	}
	if err := s.history.CreateEntry(ctx, entry); err != nil {
		return harvest.GenerationResult{}, fmt.Errorf("record history entry: %w", err)
	}

	metrics.ObserveGeneration(string(req.Mode))
	s.logger.Info("content generated",
		zap.String("mode", string(req.Mode)),
		zap.String("entry_id", id),
	)
	return result, nil
}

func (s *Service) buildPrompt(ctx context.Context, req harvest.GenerationRequest) (string, error) {
	switch req.Mode {
	case harvest.ModeTrend:
		limit := globalContextLimit
		if !req.Session.All() {
			limit = sessionContextLimit
		}
		context, err := s.catalog.TopPosts(ctx, req.Session, limit)
		if err != nil {
			return "", fmt.Errorf("load generation context: %w", err)
		}
		return trendPrompt(context, req.Topic, req.Tone), nil
	case harvest.ModeRemix:
		if strings.TrimSpace(req.ReferenceCaption) == "" {
			return "", fmt.Errorf("remix mode requires a reference caption")
		}
		return remixPrompt(req.ReferenceCaption, req.Topic, req.Tone), nil
	default:
		return "", fmt.Errorf("unsupported generation mode %q", req.Mode)
	}
}
