package extract

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cafemap/cafemap/internal/cafemap"
)

// StageResult is what a fallback stage managed to pull out of a post.
type StageResult struct {
	Name    string
	Address string
	// Text is supplemental text recovered by the stage (OCR output),
	// fed into tag inference alongside the post text.
	Text string
}

// Stage is one fallback attempt in the extraction pipeline. Stages run in
// strict order; the first one reporting ok wins. Adding a new stage is a
// matter of appending to the sequence.
type Stage interface {
	Kind() cafemap.Stage
	Attempt(ctx context.Context, post cafemap.Post) (StageResult, bool)
}

// textStage applies the regex heuristics to the post text. A usable address
// is what makes the stage succeed; the name is best-effort and a missing one
// keeps the candidate out of auto-confirmation later.
type textStage struct {
	h *heuristics
}

func (s *textStage) Kind() cafemap.Stage { return cafemap.StageTextHeuristic }

func (s *textStage) Attempt(_ context.Context, post cafemap.Post) (StageResult, bool) {
	address := s.h.extractAddress(post.Text)
	if address == "" {
		return StageResult{}, false
	}
	return StageResult{Name: s.h.extractName(post.Text), Address: address}, true
}

// ocrStage runs the external OCR function over each attached image in order
// and re-applies the heuristics to its output. The first image yielding a
// usable address wins; remaining images are not tried.
type ocrStage struct {
	h       *heuristics
	ocr     cafemap.OCR
	timeout time.Duration
	logger  *zap.Logger
}

func (s *ocrStage) Kind() cafemap.Stage { return cafemap.StageOCR }

func (s *ocrStage) Attempt(ctx context.Context, post cafemap.Post) (StageResult, bool) {
	if s.ocr == nil || len(post.ImagePaths) == 0 {
		return StageResult{}, false
	}

	var collected strings.Builder
	for _, path := range post.ImagePaths {
		text, err := s.textFromImage(ctx, path)
		if err != nil {
			s.logger.Warn("ocr failed, skipping image",
				zap.String("post_id", post.ID),
				zap.String("image", path),
				zap.Error(err))
			continue
		}
		if text == "" {
			continue
		}
		collected.WriteString(text)
		collected.WriteString("\n")

		address := s.h.extractAddress(text)
		if address == "" {
			continue
		}
		name := s.h.extractName(text)
		if name == "" {
			name = s.h.extractName(post.Text)
		}
		return StageResult{Name: name, Address: address, Text: collected.String()}, true
	}
	return StageResult{Text: collected.String()}, false
}

func (s *ocrStage) textFromImage(ctx context.Context, path string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.ocr.Text(ctx, path)
}
