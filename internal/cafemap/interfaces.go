package cafemap

import (
	"context"
	"time"
)

// Store persists posts, candidates, review records, and canonical locations.
type Store interface {
	UpsertPosts(ctx context.Context, posts []Post) (int, error)
	ListPosts(ctx context.Context) ([]Post, error)
	PutCandidate(ctx context.Context, candidate ExtractionCandidate) error
	PutReview(ctx context.Context, record ReviewRecord) error
	GetReview(ctx context.Context, postID string) (ReviewRecord, bool, error)
	ListReviews(ctx context.Context, includeResolved bool) ([]ReviewRecord, error)
	PutCanonical(ctx context.Context, loc CanonicalLocation) error
	GetCanonical(ctx context.Context, key string) (CanonicalLocation, bool, error)
	ListCanonical(ctx context.Context) ([]CanonicalLocation, error)
	Close() error
}

// Geocoder resolves an address candidate to a coordinate and region label.
// A provider returning no usable match reports geocode.ErrNoMatch through
// the error value; the pipeline treats any error as "coordinate absent".
type Geocoder interface {
	Resolve(ctx context.Context, address string) (*GeocodeResult, error)
}

// OCR extracts text from a local image file. Unreadable images yield empty
// text, not an error; errors are reserved for engine failures.
type OCR interface {
	Text(ctx context.Context, imagePath string) (string, error)
}

// BlobStore writes emitted artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes run-completion events to Pub/Sub (or a log).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
