// Package cafemap defines core types shared across subsystems.
package cafemap

import "time"

// Stage identifies which fallback stage produced an address candidate.
type Stage string

// Stage values recorded on extraction candidates.
const (
	StageTextHeuristic Stage = "TEXT_HEURISTIC"
	StageOCR           Stage = "OCR"
	StageNone          Stage = "NONE"
)

// Confidence classifies how much trust an extraction deserves.
type Confidence string

// Confidence values assigned by the extraction pipeline.
const (
	ConfidenceConfirmedAuto Confidence = "CONFIRMED_AUTO"
	ConfidenceNeedsReview   Confidence = "NEEDS_REVIEW"
	ConfidenceUnresolved    Confidence = "UNRESOLVED"
)

// ReviewStatus is the lifecycle state of a review record.
type ReviewStatus string

// Review record states persisted in the store.
const (
	ReviewOpen     ReviewStatus = "open"
	ReviewResolved ReviewStatus = "resolved"
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Post is one raw feed post as delivered by the fetcher. Immutable once fetched.
type Post struct {
	ID         string    `json:"post_id"`
	Permalink  string    `json:"permalink"`
	PostedAt   time.Time `json:"posted_at"`
	Text       string    `json:"text"`
	ImagePaths []string  `json:"image_paths"`
}

// ExtractionCandidate is the pipeline's best-effort record for one post.
// Recomputed on rerun if the post's derived state changes.
type ExtractionCandidate struct {
	PostID      string         `json:"post_id"`
	Name        string         `json:"name,omitempty"`
	AddressText string         `json:"address_text,omitempty"`
	Coordinate  *Coordinate    `json:"coordinate,omitempty"`
	RegionLabel string         `json:"region_label,omitempty"`
	SourceStage Stage          `json:"source_stage"`
	Tags        []string       `json:"tags,omitempty"`
	Attrs       map[string]any `json:"attrs,omitempty"`
	Confidence  Confidence     `json:"confidence"`
}

// ReviewRecord tracks a low-confidence candidate awaiting human confirmation.
// The Confirmed* fields are populated only by the merge step.
type ReviewRecord struct {
	ExtractionCandidate

	ConfirmedName       string       `json:"confirmed_name,omitempty"`
	ConfirmedAddress    string       `json:"confirmed_address,omitempty"`
	ConfirmedCoordinate *Coordinate  `json:"confirmed_coordinate,omitempty"`
	FinalTags           []string     `json:"final_tags,omitempty"`
	Status              ReviewStatus `json:"status"`
	Permalink           string       `json:"permalink,omitempty"`
	Thumb               string       `json:"thumb,omitempty"`
	PostText            string       `json:"post_text,omitempty"`
}

// CanonicalLocation is the de-duplicated, geocoded output unit. Multiple
// posts referencing the same place collapse into one entry keyed by
// normalized name plus rounded coordinate, never by post id.
type CanonicalLocation struct {
	Key            string         `json:"key"`
	PostID         string         `json:"post_id"`
	PostIDs        []string       `json:"post_ids"`
	Name           string         `json:"name"`
	Address        string         `json:"address,omitempty"`
	Coordinate     Coordinate     `json:"coordinate"`
	Tags           []string       `json:"tags,omitempty"`
	Attrs          map[string]any `json:"attrs,omitempty"`
	SourceStage    Stage          `json:"source_stage"`
	HumanConfirmed bool           `json:"human_confirmed"`
	Permalink      string         `json:"permalink,omitempty"`
	Thumb          string         `json:"thumb,omitempty"`
}

// GeocodeResult is a successful provider lookup.
type GeocodeResult struct {
	Coordinate Coordinate
	Region     string
	Provider   string
}

// ConfirmedRow is one row of the human-edited review artifact fed back into
// the merge step. Coordinate is nil when the confirm_coords column was empty.
type ConfirmedRow struct {
	PostID     string
	Name       string
	Address    string
	Coordinate *Coordinate
	FinalTags  []string
}

// Empty reports whether every confirm field is blank. Such rows are ignored
// by merge.
func (r ConfirmedRow) Empty() bool {
	return r.Name == "" && r.Address == "" && r.Coordinate == nil && len(r.FinalTags) == 0
}
