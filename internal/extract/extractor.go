package extract

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cafemap/cafemap/internal/cafemap"
	"github.com/cafemap/cafemap/internal/geocode"
	"github.com/cafemap/cafemap/internal/metrics"
)

// Config controls Extractor behavior beyond the heuristic rules.
type Config struct {
	OCRTimeout time.Duration
}

// Extractor runs the fallback stages for one post and assigns confidence.
type Extractor struct {
	stages   []Stage
	h        *heuristics
	tagger   *tagger
	geocoder cafemap.Geocoder
	expected []string
	logger   *zap.Logger
}

// New builds an Extractor. The geocoder may be nil, in which case every
// candidate with an address stays NEEDS_REVIEW. A nil ocr disables the OCR
// stage entirely.
func New(rules Rules, ocr cafemap.OCR, geocoder cafemap.Geocoder, cfg Config, logger *zap.Logger) (*Extractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h, err := newHeuristics(rules)
	if err != nil {
		return nil, err
	}
	stages := []Stage{&textStage{h: h}}
	if ocr != nil {
		stages = append(stages, &ocrStage{h: h, ocr: ocr, timeout: cfg.OCRTimeout, logger: logger})
	}
	expected := make([]string, 0, len(rules.ExpectedRegions))
	for _, r := range rules.ExpectedRegions {
		expected = append(expected, strings.ToLower(r))
	}
	return &Extractor{
		stages:   stages,
		h:        h,
		tagger:   &tagger{rules: rules},
		geocoder: geocoder,
		expected: expected,
		logger:   logger,
	}, nil
}

// Extract derives the best-effort candidate for one post. It never returns
// an error: failures degrade into lower confidence, and every post yields
// exactly one candidate per run.
func (e *Extractor) Extract(ctx context.Context, post cafemap.Post) cafemap.ExtractionCandidate {
	candidate := cafemap.ExtractionCandidate{
		PostID:      post.ID,
		SourceStage: cafemap.StageNone,
	}

	var supplemental string
	for _, stage := range e.stages {
		result, ok := stage.Attempt(ctx, post)
		if result.Text != "" {
			supplemental += result.Text
		}
		if !ok {
			continue
		}
		candidate.SourceStage = stage.Kind()
		candidate.Name = result.Name
		candidate.AddressText = result.Address
		break
	}
	if candidate.SourceStage == cafemap.StageNone {
		// No stage yielded an address; a bare name is still a review signal.
		candidate.Name = e.h.extractName(post.Text)
	}

	if candidate.AddressText != "" && e.geocoder != nil {
		e.resolve(ctx, &candidate)
	}

	candidate.Tags, candidate.Attrs = e.tagger.infer(post.Text + "\n" + supplemental)
	candidate.Confidence = e.confidence(candidate)

	metrics.ObserveExtraction(string(candidate.SourceStage), string(candidate.Confidence))
	return candidate
}

func (e *Extractor) resolve(ctx context.Context, candidate *cafemap.ExtractionCandidate) {
	result, err := e.geocoder.Resolve(ctx, candidate.AddressText)
	if err != nil {
		if !errors.Is(err, geocode.ErrNoMatch) {
			e.logger.Warn("geocode failed, leaving coordinate absent",
				zap.String("post_id", candidate.PostID),
				zap.String("address", candidate.AddressText),
				zap.Error(err))
		}
		return
	}
	coord := result.Coordinate
	candidate.Coordinate = &coord
	candidate.RegionLabel = result.Region
}

// confidence applies the explicit auto-confirmation rule: a candidate is
// CONFIRMED_AUTO only when it carries a name, a resolved coordinate, and a
// region label consistent with the expected region; any partial signal
// downgrades to NEEDS_REVIEW, and nothing at all is UNRESOLVED.
func (e *Extractor) confidence(c cafemap.ExtractionCandidate) cafemap.Confidence {
	if c.Name != "" && c.Coordinate != nil && e.regionMatches(c.RegionLabel) {
		return cafemap.ConfidenceConfirmedAuto
	}
	if c.Name != "" || c.AddressText != "" || c.Coordinate != nil {
		return cafemap.ConfidenceNeedsReview
	}
	return cafemap.ConfidenceUnresolved
}

func (e *Extractor) regionMatches(label string) bool {
	if len(e.expected) == 0 {
		return true
	}
	lower := strings.ToLower(label)
	for _, token := range e.expected {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
