package extract

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cafemap/cafemap/internal/cafemap"
	"github.com/cafemap/cafemap/internal/geocode"
)

type fakeOCR struct {
	mu    sync.Mutex
	texts map[string]string
	calls []string
	err   error
}

func (f *fakeOCR) Text(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	if f.err != nil {
		return "", f.err
	}
	return f.texts[path], nil
}

type fakeGeocoder struct {
	result *cafemap.GeocodeResult
	err    error
}

func (f *fakeGeocoder) Resolve(context.Context, string) (*cafemap.GeocodeResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func taiwanResult() *cafemap.GeocodeResult {
	return &cafemap.GeocodeResult{
		Coordinate: cafemap.Coordinate{Lat: 25.0268, Lng: 121.5435},
		Region:     "大安區, 台北市, 台灣",
		Provider:   "nominatim",
	}
}

func TestExtractAutoConfirmsFromText(t *testing.T) {
	t.Parallel()

	ocr := &fakeOCR{}
	ex, err := New(DefaultRules(), ocr, &fakeGeocoder{result: taiwanResult()}, Config{}, zap.NewNop())
	require.NoError(t, err)

	post := cafemap.Post{
		ID:         "p1",
		Text:       "「月光咖啡」新開幕\n台北市大安區和平東路二段96號\n有插座跟甜點",
		ImagePaths: []string{"p1-0.jpg"},
	}
	c := ex.Extract(context.Background(), post)

	require.Equal(t, cafemap.StageTextHeuristic, c.SourceStage)
	require.Equal(t, "月光咖啡", c.Name)
	require.Equal(t, "台北市大安區和平東路二段96號", c.AddressText)
	require.NotNil(t, c.Coordinate)
	require.Equal(t, cafemap.ConfidenceConfirmedAuto, c.Confidence)
	require.Contains(t, c.Tags, "dessert")
	// The text stage satisfied the post, so OCR is never invoked.
	require.Empty(t, ocr.calls)
}

func TestExtractFallsBackToOCR(t *testing.T) {
	t.Parallel()

	ocr := &fakeOCR{texts: map[string]string{
		"p2-0.jpg": "開幕酬賓",
		"p2-1.jpg": "山丘珈琲\n新北市板橋區文化路100號",
	}}
	ex, err := New(DefaultRules(), ocr, &fakeGeocoder{result: taiwanResult()}, Config{}, zap.NewNop())
	require.NoError(t, err)

	post := cafemap.Post{
		ID:         "p2",
		Text:       "菜單都在圖片裡",
		ImagePaths: []string{"p2-0.jpg", "p2-1.jpg"},
	}
	c := ex.Extract(context.Background(), post)

	require.Equal(t, cafemap.StageOCR, c.SourceStage)
	require.Equal(t, "山丘珈琲", c.Name)
	require.Equal(t, "新北市板橋區文化路100號", c.AddressText)
	require.Equal(t, []string{"p2-0.jpg", "p2-1.jpg"}, ocr.calls)
}

func TestExtractUnresolvedWhenNothingFound(t *testing.T) {
	t.Parallel()

	ex, err := New(DefaultRules(), &fakeOCR{}, &fakeGeocoder{err: geocode.ErrNoMatch}, Config{}, zap.NewNop())
	require.NoError(t, err)

	// The OCR stub yields empty text for the attached screenshot.
	c := ex.Extract(context.Background(), cafemap.Post{ID: "p3", Text: "", ImagePaths: []string{"screenshot.png"}})
	require.Equal(t, cafemap.StageNone, c.SourceStage)
	require.Equal(t, "", c.AddressText)
	require.Equal(t, cafemap.ConfidenceUnresolved, c.Confidence)
}

func TestExtractWesternAddressAutoConfirms(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()
	rules.ExpectedRegions = []string{"london"}
	geo := &fakeGeocoder{result: &cafemap.GeocodeResult{
		Coordinate: cafemap.Coordinate{Lat: 51.52, Lng: -0.156},
		Region:     "Marylebone, London, United Kingdom",
		Provider:   "google",
	}}
	ex, err := New(rules, nil, geo, Config{}, zap.NewNop())
	require.NoError(t, err)

	c := ex.Extract(context.Background(), cafemap.Post{ID: "pw", Text: "Moonlight Cafe, 12 Baker St"})
	require.Equal(t, cafemap.StageTextHeuristic, c.SourceStage)
	require.Equal(t, "Moonlight Cafe", c.Name)
	require.Equal(t, "12 Baker St", c.AddressText)
	require.Equal(t, cafemap.ConfidenceConfirmedAuto, c.Confidence)
}

func TestExtractNeedsReviewOnGeocodeMiss(t *testing.T) {
	t.Parallel()

	ex, err := New(DefaultRules(), nil, &fakeGeocoder{err: geocode.ErrNoMatch}, Config{}, zap.NewNop())
	require.NoError(t, err)

	post := cafemap.Post{ID: "p4", Text: "Moonlight Cafe, 12 Baker St"}
	c := ex.Extract(context.Background(), post)

	require.Equal(t, cafemap.StageTextHeuristic, c.SourceStage)
	require.Equal(t, "Moonlight Cafe", c.Name)
	require.Equal(t, "12 Baker St", c.AddressText)
	require.Nil(t, c.Coordinate)
	require.Equal(t, cafemap.ConfidenceNeedsReview, c.Confidence)
}

func TestExtractRegionMismatchStaysNeedsReview(t *testing.T) {
	t.Parallel()

	geo := &fakeGeocoder{result: &cafemap.GeocodeResult{
		Coordinate: cafemap.Coordinate{Lat: 51.52, Lng: -0.156},
		Region:     "Marylebone, London, United Kingdom",
		Provider:   "nominatim",
	}}
	ex, err := New(DefaultRules(), nil, geo, Config{}, zap.NewNop())
	require.NoError(t, err)

	post := cafemap.Post{ID: "p5", Text: "Moonlight Cafe, 12 Baker St"}
	c := ex.Extract(context.Background(), post)

	require.NotNil(t, c.Coordinate)
	require.Equal(t, cafemap.ConfidenceNeedsReview, c.Confidence)
}

func TestExtractBareNameIsReviewSignal(t *testing.T) {
	t.Parallel()

	ex, err := New(DefaultRules(), nil, nil, Config{}, zap.NewNop())
	require.NoError(t, err)

	c := ex.Extract(context.Background(), cafemap.Post{ID: "p6", Text: "「月光咖啡」真的很讚"})
	require.Equal(t, cafemap.StageNone, c.SourceStage)
	require.Equal(t, "月光咖啡", c.Name)
	require.Equal(t, cafemap.ConfidenceNeedsReview, c.Confidence)
}

func TestExtractOCREngineFailureDegradesGracefully(t *testing.T) {
	t.Parallel()

	ocr := &fakeOCR{err: context.DeadlineExceeded}
	ex, err := New(DefaultRules(), ocr, nil, Config{}, zap.NewNop())
	require.NoError(t, err)

	post := cafemap.Post{ID: "p7", Text: "", ImagePaths: []string{"p7-0.jpg"}}
	c := ex.Extract(context.Background(), post)

	require.Equal(t, cafemap.StageNone, c.SourceStage)
	require.Equal(t, cafemap.ConfidenceUnresolved, c.Confidence)
	require.Equal(t, []string{"p7-0.jpg"}, ocr.calls)
}
