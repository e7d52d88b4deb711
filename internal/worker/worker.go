// Package worker implements the extraction pipeline execution loop.
package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/cafemap/cafemap/internal/cafemap"
	"github.com/cafemap/cafemap/internal/metrics"
)

// Extractor produces an extraction candidate for a post.
type Extractor interface {
	Extract(ctx context.Context, post cafemap.Post) cafemap.ExtractionCandidate
}

// Classifier routes a candidate into the canonical dataset or the review
// ledger.
type Classifier interface {
	Classify(ctx context.Context, candidate cafemap.ExtractionCandidate, post cafemap.Post) error
}

// Worker consumes posts from a channel and runs them through extraction and
// classification.
type Worker struct {
	extractor  Extractor
	classifier Classifier
	report     *cafemap.RunRecorder
	logger     *zap.Logger
}

// New constructs a Worker.
func New(extractor Extractor, classifier Classifier, report *cafemap.RunRecorder, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		extractor:  extractor,
		classifier: classifier,
		report:     report,
		logger:     logger,
	}
}

// Run blocks, consuming posts until the channel closes or the context
// finishes.
func (w *Worker) Run(ctx context.Context, posts <-chan cafemap.Post) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	for {
		select {
		case <-ctx.Done():
			return
		case post, ok := <-posts:
			if !ok {
				return
			}
			w.process(ctx, post)
		}
	}
}

func (w *Worker) process(ctx context.Context, post cafemap.Post) {
	candidate := w.extractor.Extract(ctx, post)
	if err := w.classifier.Classify(ctx, candidate, post); err != nil {
		w.report.ObserveFailure(err)
		w.logger.Error("classify candidate failed",
			zap.String("post_id", post.ID),
			zap.Error(err),
		)
		return
	}
	w.report.Observe(candidate.Confidence)
	w.logger.Debug("post processed",
		zap.String("post_id", post.ID),
		zap.String("stage", string(candidate.SourceStage)),
		zap.String("confidence", string(candidate.Confidence)),
	)
}
