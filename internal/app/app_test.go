package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cafemap/cafemap/internal/cafemap"
	"github.com/cafemap/cafemap/internal/config"
	notifymem "github.com/cafemap/cafemap/internal/notify/memory"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	var cfg config.Config
	cfg.Store.Backend = "memory"
	cfg.OCR.Engine = "none"
	cfg.Artifacts.Backend = "local"
	cfg.Artifacts.BaseDir = t.TempDir()
	cfg.Artifacts.Prefix = "runs"
	cfg.Pipeline.Workers = 2
	cfg.Pipeline.QueueDepth = 4
	return cfg
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNewWiresServices(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	require.NotNil(t, a.Store)
	require.NotNil(t, a.Geocoder)
	require.NotNil(t, a.OCR)
	require.NotNil(t, a.Extractor)
	require.NotNil(t, a.Artifacts)
	require.NotNil(t, a.Publisher)

	_, ok := a.LastRun()
	require.False(t, ok)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Store.Backend = "etcd"
	_, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestRunExtractionEndToEnd(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	pub := notifymem.New()
	a.Publisher = pub
	ctx := context.Background()

	_, err := a.Store.UpsertPosts(ctx, []cafemap.Post{
		{ID: "p1", Text: "「月光咖啡」真的很讚", Permalink: "https://example.com/posts/1"},
		{ID: "p2", Text: ""},
	})
	require.NoError(t, err)

	report, err := a.RunExtraction(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.PostsProcessed)
	require.Equal(t, 1, report.NeedsReview)
	require.Equal(t, 1, report.Unresolved)
	require.Zero(t, report.ConfirmedAuto)
	require.NotEmpty(t, report.RunID)

	last, ok := a.LastRun()
	require.True(t, ok)
	require.Equal(t, report.RunID, last.RunID)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	payload, isMap := msgs[0].Payload.(map[string]any)
	require.True(t, isMap)
	require.Equal(t, report.RunID, payload["run_id"])
	require.Equal(t, "succeeded", payload["status"])

	// Artifacts land under <base>/<prefix>/<run id>/.
	runDir := filepath.Join(a.Cfg.Artifacts.BaseDir, "runs", report.RunID)
	_, err = os.Stat(filepath.Join(runDir, "map_data.geojson"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(runDir, "review_queue.csv"))
	require.NoError(t, err)
}

func TestMergeAppliesConfirmedCSV(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	ctx := context.Background()

	_, err := a.Store.UpsertPosts(ctx, []cafemap.Post{
		{ID: "p1", Text: "「月光咖啡」真的很讚"},
	})
	require.NoError(t, err)
	_, err = a.RunExtraction(ctx)
	require.NoError(t, err)

	csvPath := filepath.Join(t.TempDir(), "confirmed.csv")
	content := "id,confirm_name,confirm_address,confirm_coords,final_tags\n" +
		`p1,月光咖啡,台北市大安區和平東路二段96號,"25.0268,121.5435",dessert` + "\n" +
		`ghost,不存在的店,,"25.0,121.5",` + "\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(content), 0o600))

	summary, err := a.Merge(ctx, csvPath)
	require.NoError(t, err)
	require.Equal(t, 1, summary.RowsApplied)
	require.Equal(t, []string{"ghost"}, summary.Orphans)
	require.Empty(t, summary.RowErrors)

	locs, err := a.Store.ListCanonical(ctx)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	require.Equal(t, "月光咖啡", locs[0].Name)
	require.True(t, locs[0].HumanConfirmed)

	rec, found, err := a.Store.GetReview(ctx, "p1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, cafemap.ReviewResolved, rec.Status)
}

func TestMergeMissingFile(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	_, err := a.Merge(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}
