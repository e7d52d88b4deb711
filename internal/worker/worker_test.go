package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cafemap/cafemap/internal/cafemap"
)

type stubExtractor struct {
	confidence cafemap.Confidence
}

func (s *stubExtractor) Extract(_ context.Context, post cafemap.Post) cafemap.ExtractionCandidate {
	return cafemap.ExtractionCandidate{
		PostID:     post.ID,
		Name:       "Stub Cafe",
		Confidence: s.confidence,
	}
}

type recordingClassifier struct {
	mu    sync.Mutex
	seen  []string
	errOn string
}

func (c *recordingClassifier) Classify(_ context.Context, candidate cafemap.ExtractionCandidate, _ cafemap.Post) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, candidate.PostID)
	if candidate.PostID == c.errOn {
		return errors.New("boom")
	}
	return nil
}

func (c *recordingClassifier) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seen...)
}

func TestWorkerProcessesUntilChannelCloses(t *testing.T) {
	t.Parallel()

	classifier := &recordingClassifier{}
	report := cafemap.NewRunRecorder("run", time.Now())
	w := New(&stubExtractor{confidence: cafemap.ConfidenceConfirmedAuto}, classifier, report, zap.NewNop())

	ch := make(chan cafemap.Post, 3)
	ch <- cafemap.Post{ID: "p1"}
	ch <- cafemap.Post{ID: "p2"}
	ch <- cafemap.Post{ID: "p3"}
	close(ch)

	w.Run(context.Background(), ch)

	require.ElementsMatch(t, []string{"p1", "p2", "p3"}, classifier.ids())
	snap := report.Snapshot()
	require.Equal(t, 3, snap.ConfirmedAuto)
	require.Equal(t, 0, snap.Failed)
}

func TestWorkerRecordsClassifyFailure(t *testing.T) {
	t.Parallel()

	classifier := &recordingClassifier{errOn: "bad"}
	report := cafemap.NewRunRecorder("run", time.Now())
	w := New(&stubExtractor{confidence: cafemap.ConfidenceNeedsReview}, classifier, report, zap.NewNop())

	ch := make(chan cafemap.Post, 2)
	ch <- cafemap.Post{ID: "good"}
	ch <- cafemap.Post{ID: "bad"}
	close(ch)

	w.Run(context.Background(), ch)

	snap := report.Snapshot()
	require.Equal(t, 1, snap.NeedsReview)
	require.Equal(t, 1, snap.Failed)
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New(&stubExtractor{}, &recordingClassifier{}, cafemap.NewRunRecorder("run", time.Now()), zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, make(chan cafemap.Post))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
