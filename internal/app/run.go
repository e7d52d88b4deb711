package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/cafemap/cafemap/internal/api"
	"github.com/cafemap/cafemap/internal/cafemap"
	"github.com/cafemap/cafemap/internal/cutoff"
	"github.com/cafemap/cafemap/internal/dispatcher"
	"github.com/cafemap/cafemap/internal/emit"
	"github.com/cafemap/cafemap/internal/fetcher"
	"github.com/cafemap/cafemap/internal/fetcher/headless"
	"github.com/cafemap/cafemap/internal/fetcher/images"
	"github.com/cafemap/cafemap/internal/ledger"
	"github.com/cafemap/cafemap/internal/metrics"
	"github.com/cafemap/cafemap/internal/worker"
)

// Crawl fetches the configured feed into the store.
func (a *App) Crawl(ctx context.Context) (fetcher.Result, error) {
	if a.Cfg.Crawl.GroupURL == "" {
		return fetcher.Result{}, fmt.Errorf("crawl.group_url is required")
	}

	source, err := headless.New(headless.Config{
		UserAgent:         a.Cfg.Crawl.UserAgent,
		NavigationTimeout: time.Duration(a.Cfg.Crawl.NavTimeoutSec) * time.Second,
		MaxScrolls:        a.Cfg.Crawl.MaxScrolls,
		ScrollPause:       time.Duration(a.Cfg.Crawl.ScrollPauseMs) * time.Millisecond,
		ScrollJitter:      time.Duration(a.Cfg.Crawl.ScrollJitterMs) * time.Millisecond,
	}, a.Logger)
	if err != nil {
		return fetcher.Result{}, fmt.Errorf("start headless source: %w", err)
	}
	defer source.Close()

	downloader, err := images.New(images.Config{
		Dir:       a.Cfg.Crawl.ImagesDir,
		UserAgent: a.Cfg.Crawl.UserAgent,
		Timeout:   time.Duration(a.Cfg.Crawl.ImageTimeoutS) * time.Second,
	}, a.Logger)
	if err != nil {
		return fetcher.Result{}, fmt.Errorf("start image downloader: %w", err)
	}

	ctrl := cutoff.New(a.Clock.Now(), cutoff.Config{
		MaxAge:    a.Cfg.Crawl.MaxAge(),
		Tolerance: a.Cfg.Crawl.Tolerance,
	}, a.Logger)

	return fetcher.NewCrawler(source, downloader, a.Store, a.Logger).
		Crawl(ctx, a.Cfg.Crawl.GroupURL, ctrl)
}

// RunExtraction processes every stored post through the worker pool, emits
// the dataset artifacts, and publishes a run-completion event.
func (a *App) RunExtraction(ctx context.Context) (cafemap.RunReport, error) {
	runID, err := a.IDGen.NewID()
	if err != nil {
		return cafemap.RunReport{}, fmt.Errorf("generate run id: %w", err)
	}
	report := cafemap.NewRunRecorder(runID, a.Clock.Now())

	posts, err := a.Store.ListPosts(ctx)
	if err != nil {
		metrics.ObserveRun("failed")
		return cafemap.RunReport{}, fmt.Errorf("list posts: %w", err)
	}

	led := ledger.New(a.Store, a.Logger)
	workers := make([]*worker.Worker, a.Cfg.Pipeline.Workers)
	for i := range workers {
		workers[i] = worker.New(a.Extractor, led, report, a.Logger)
	}
	dispatcher.New(workers, a.Cfg.Pipeline.QueueDepth).Run(ctx, posts)

	report.Finish(a.Clock.Now())

	uris, err := a.EmitArtifacts(ctx, runID)
	if err != nil {
		metrics.ObserveRun("failed")
		return report.Snapshot(), err
	}

	status := "succeeded"
	if ctx.Err() != nil {
		status = "canceled"
	}
	metrics.ObserveRun(status)

	snapshot := report.Snapshot()
	a.RecordRun(snapshot)

	payload := map[string]any{
		"run_id":          snapshot.RunID,
		"status":          status,
		"posts_processed": snapshot.PostsProcessed,
		"confirmed_auto":  snapshot.ConfirmedAuto,
		"needs_review":    snapshot.NeedsReview,
		"unresolved":      snapshot.Unresolved,
		"failed":          snapshot.Failed,
		"artifacts":       uris,
		"finished_at":     snapshot.Finished.Format(time.RFC3339),
	}
	if _, err := a.Publisher.Publish(ctx, a.Cfg.PubSub.TopicName, payload); err != nil {
		a.Logger.Warn("run event publish failed", zap.Error(err))
	}

	a.Logger.Info("extraction run finished",
		zap.String("run_id", snapshot.RunID),
		zap.Int("posts_processed", snapshot.PostsProcessed),
		zap.Int("confirmed_auto", snapshot.ConfirmedAuto),
		zap.Int("needs_review", snapshot.NeedsReview),
		zap.Int("unresolved", snapshot.Unresolved),
	)
	return snapshot, nil
}

// EmitArtifacts writes the GeoJSON dataset and the review CSV to the
// artifact store and returns their URIs.
func (a *App) EmitArtifacts(ctx context.Context, runID string) (map[string]string, error) {
	locations, err := a.Store.ListCanonical(ctx)
	if err != nil {
		return nil, fmt.Errorf("list canonical locations: %w", err)
	}
	reviews, err := a.Store.ListReviews(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}

	var geojson bytes.Buffer
	if err := emit.WriteDataset(&geojson, locations); err != nil {
		return nil, fmt.Errorf("write dataset: %w", err)
	}
	var review bytes.Buffer
	if err := emit.WriteReviewCSV(&review, reviews); err != nil {
		return nil, fmt.Errorf("write review csv: %w", err)
	}

	prefix := path.Join(a.Cfg.Artifacts.Prefix, runID)
	uris := map[string]string{}

	uri, err := a.Artifacts.PutObject(ctx, path.Join(prefix, "map_data.geojson"), "application/geo+json", geojson.Bytes())
	if err != nil {
		return nil, fmt.Errorf("store dataset artifact: %w", err)
	}
	uris["map_data.geojson"] = uri

	uri, err = a.Artifacts.PutObject(ctx, path.Join(prefix, "review_queue.csv"), "text/csv", review.Bytes())
	if err != nil {
		return nil, fmt.Errorf("store review artifact: %w", err)
	}
	uris["review_queue.csv"] = uri

	return uris, nil
}

// MergeSummary reports the outcome of one merge pass.
type MergeSummary struct {
	RowsApplied int
	RowsSkipped int
	Orphans     []string
	RowErrors   []error
}

// Merge applies human corrections from the confirmed CSV at csvPath and
// re-emits the dataset. Orphan rows are collected, not fatal.
func (a *App) Merge(ctx context.Context, csvPath string) (MergeSummary, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return MergeSummary{}, fmt.Errorf("open confirmed csv: %w", err)
	}
	defer f.Close()

	rows, rowErrs, err := emit.ReadConfirmedCSV(f)
	if err != nil {
		return MergeSummary{}, fmt.Errorf("read confirmed csv: %w", err)
	}

	summary := MergeSummary{RowErrors: rowErrs}
	led := ledger.New(a.Store, a.Logger)
	for _, row := range rows {
		if row.Empty() {
			summary.RowsSkipped++
			continue
		}
		if err := led.Merge(ctx, row); err != nil {
			var orphan *cafemap.OrphanCorrectionError
			if errors.As(err, &orphan) {
				summary.Orphans = append(summary.Orphans, orphan.PostID)
				continue
			}
			return summary, fmt.Errorf("merge row %s: %w", row.PostID, err)
		}
		summary.RowsApplied++
	}

	runID, err := a.IDGen.NewID()
	if err != nil {
		return summary, fmt.Errorf("generate merge run id: %w", err)
	}
	if _, err := a.EmitArtifacts(ctx, runID); err != nil {
		return summary, err
	}

	a.Logger.Info("merge pass finished",
		zap.Int("rows_applied", summary.RowsApplied),
		zap.Int("rows_skipped", summary.RowsSkipped),
		zap.Int("orphans", len(summary.Orphans)),
		zap.Int("row_errors", len(summary.RowErrors)),
	)
	return summary, nil
}

// Serve runs the status API until the context finishes.
func (a *App) Serve(ctx context.Context) error {
	metrics.Init()
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Cfg.Server.Port),
		Handler:           api.NewServer(a.Store, a, a.Logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("status api listening", zap.Int("port", a.Cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve status api: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown status api: %w", err)
		}
		return nil
	}
}
