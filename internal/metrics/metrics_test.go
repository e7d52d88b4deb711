package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveHelpersAreNoOpsBeforeInit(t *testing.T) {
	// Collectors are nil until Init runs; none of these may panic.
	ObserveExtraction("TEXT_HEURISTIC", "CONFIRMED_AUTO")
	ObserveGeocode("google", "hit")
	ObserveGeocodeRateLimitDelay("nominatim", time.Second)
	ObserveOCR("tesseract", "ok")
	AddPostsFetched(3)
	ObserveRun("succeeded")
	ObserveMergeRow("applied")
	IncActiveWorkers()
	DecActiveWorkers()
}

func TestInitAndCounters(t *testing.T) {
	Init()
	Init() // second call must be a no-op

	ObserveExtraction("OCR", "NEEDS_REVIEW")
	ObserveExtraction("OCR", "NEEDS_REVIEW")
	if got := testutil.ToFloat64(extractionsTotal.WithLabelValues("OCR", "NEEDS_REVIEW")); got < 2 {
		t.Fatalf("expected at least 2 extraction observations, got %v", got)
	}

	ObserveGeocode("nominatim", "miss")
	if got := testutil.ToFloat64(geocodeRequestsTotal.WithLabelValues("nominatim", "miss")); got < 1 {
		t.Fatalf("expected geocode counter to increase, got %v", got)
	}

	AddPostsFetched(5)
	AddPostsFetched(-1) // ignored
	if got := testutil.ToFloat64(postsFetchedTotal); got < 5 {
		t.Fatalf("expected at least 5 posts fetched, got %v", got)
	}

	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	if got := testutil.ToFloat64(activeWorkers); got != 1 {
		t.Fatalf("expected 1 active worker, got %v", got)
	}
	DecActiveWorkers()
}
