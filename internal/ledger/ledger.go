// Package ledger tracks which extractions were auto-confident, routes the
// rest into the review queue, and merges human confirmations back into the
// canonical dataset.
package ledger

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/cafemap/cafemap/internal/cafemap"
	"github.com/cafemap/cafemap/internal/metrics"
)

// Ledger coordinates candidate classification and confirmed-row merges over
// the store.
type Ledger struct {
	store  cafemap.Store
	logger *zap.Logger
}

// New builds a Ledger.
func New(store cafemap.Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, logger: logger}
}

// Classify routes one pipeline output: auto-confident candidates upsert
// into the canonical set and close any still-open review record for the
// post, everything else becomes (or refreshes) an open review record. A
// review record already resolved by a human is left untouched so reruns
// never lose confirmations.
func (l *Ledger) Classify(ctx context.Context, candidate cafemap.ExtractionCandidate, post cafemap.Post) error {
	if err := l.store.PutCandidate(ctx, candidate); err != nil {
		return fmt.Errorf("store candidate: %w", err)
	}

	existing, found, err := l.store.GetReview(ctx, candidate.PostID)
	if err != nil {
		return fmt.Errorf("load review record: %w", err)
	}

	if candidate.Confidence == cafemap.ConfidenceConfirmedAuto {
		loc := locationFromCandidate(candidate, post)
		if err := l.upsertCanonical(ctx, loc); err != nil {
			return err
		}
		// A rerun can upgrade a post that was queued for review; close the
		// record so the post lives in exactly one artifact.
		if found && existing.Status == cafemap.ReviewOpen {
			existing.Status = cafemap.ReviewResolved
			if err := l.store.PutReview(ctx, existing); err != nil {
				return fmt.Errorf("store review record: %w", err)
			}
		}
		return nil
	}

	if found && existing.Status == cafemap.ReviewResolved {
		l.logger.Debug("review already resolved, keeping human result",
			zap.String("post_id", candidate.PostID))
		return nil
	}

	record := cafemap.ReviewRecord{
		ExtractionCandidate: candidate,
		Status:              cafemap.ReviewOpen,
		Permalink:           post.Permalink,
		PostText:            post.Text,
	}
	if len(post.ImagePaths) > 0 {
		record.Thumb = post.ImagePaths[0]
	}
	if err := l.store.PutReview(ctx, record); err != nil {
		return fmt.Errorf("store review record: %w", err)
	}
	return nil
}

// Merge applies one human-confirmed row. Non-empty confirm fields override
// the auto-extracted values; absent fields leave them untouched. Rows with
// every confirm field empty are ignored. An unknown post id is an orphan
// correction, surfaced to the operator while the rest of the rows proceed.
// Applying the same row twice produces no further change.
func (l *Ledger) Merge(ctx context.Context, row cafemap.ConfirmedRow) error {
	if row.Empty() {
		metrics.ObserveMergeRow("skipped")
		return nil
	}

	record, found, err := l.store.GetReview(ctx, row.PostID)
	if err != nil {
		return fmt.Errorf("load review record: %w", err)
	}
	if !found {
		metrics.ObserveMergeRow("orphan")
		return &cafemap.OrphanCorrectionError{PostID: row.PostID}
	}

	if row.Name != "" {
		record.ConfirmedName = row.Name
	}
	if row.Address != "" {
		record.ConfirmedAddress = row.Address
	}
	if row.Coordinate != nil {
		coord := *row.Coordinate
		record.ConfirmedCoordinate = &coord
	}
	if len(row.FinalTags) > 0 {
		record.FinalTags = append([]string(nil), row.FinalTags...)
	}
	record.Status = cafemap.ReviewResolved

	loc, ok := locationFromReview(record)
	if !ok {
		// Confirmed fields still leave no usable name+coordinate pair;
		// keep the record resolved but out of the canonical set.
		l.logger.Warn("confirmed row lacks name or coordinate, not emitting canonical entry",
			zap.String("post_id", row.PostID))
	} else if err := l.upsertCanonical(ctx, loc); err != nil {
		return err
	}

	if err := l.store.PutReview(ctx, record); err != nil {
		return fmt.Errorf("store review record: %w", err)
	}
	metrics.ObserveMergeRow("merged")
	return nil
}

// upsertCanonical folds the update into any existing entry under the same
// stable key. At most one canonical location exists per key.
func (l *Ledger) upsertCanonical(ctx context.Context, update cafemap.CanonicalLocation) error {
	existing, found, err := l.store.GetCanonical(ctx, update.Key)
	if err != nil {
		return fmt.Errorf("load canonical: %w", err)
	}
	if found {
		update = mergeCanonical(existing, update)
	}
	if err := l.store.PutCanonical(ctx, update); err != nil {
		return fmt.Errorf("store canonical: %w", err)
	}
	return nil
}

// mergeCanonical folds update into existing. Later extractions only fill
// previously-absent fields or upgrade provenance; a human-confirmed field is
// never overwritten by an auto-extracted one.
func mergeCanonical(existing, update cafemap.CanonicalLocation) cafemap.CanonicalLocation {
	merged := existing

	if update.HumanConfirmed {
		// Human input wins over whatever was there.
		merged.Name = update.Name
		merged.Coordinate = update.Coordinate
		merged.HumanConfirmed = true
		if update.Address != "" {
			merged.Address = update.Address
		}
		if len(update.Tags) > 0 {
			merged.Tags = append([]string(nil), update.Tags...)
		}
	} else {
		if merged.Address == "" {
			merged.Address = update.Address
		}
		if !merged.HumanConfirmed {
			merged.Tags = unionTags(merged.Tags, update.Tags)
		}
	}

	if merged.Attrs == nil {
		merged.Attrs = map[string]any{}
	}
	for k, v := range update.Attrs {
		if _, ok := merged.Attrs[k]; !ok {
			merged.Attrs[k] = v
		}
	}
	if len(merged.Attrs) == 0 {
		merged.Attrs = nil
	}
	if merged.Permalink == "" {
		merged.Permalink = update.Permalink
	}
	if merged.Thumb == "" {
		merged.Thumb = update.Thumb
	}

	merged.PostIDs = unionTags(merged.PostIDs, update.PostIDs)
	merged.PostID = merged.PostIDs[0]
	return merged
}

func unionTags(a, b []string) []string {
	set := map[string]struct{}{}
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func locationFromCandidate(c cafemap.ExtractionCandidate, post cafemap.Post) cafemap.CanonicalLocation {
	loc := cafemap.CanonicalLocation{
		Key:         cafemap.CanonicalKey(c.Name, *c.Coordinate),
		PostID:      c.PostID,
		PostIDs:     []string{c.PostID},
		Name:        c.Name,
		Address:     c.AddressText,
		Coordinate:  *c.Coordinate,
		Tags:        append([]string(nil), c.Tags...),
		SourceStage: c.SourceStage,
		Permalink:   post.Permalink,
	}
	if len(c.Attrs) > 0 {
		loc.Attrs = map[string]any{}
		for k, v := range c.Attrs {
			loc.Attrs[k] = v
		}
	}
	if len(post.ImagePaths) > 0 {
		loc.Thumb = post.ImagePaths[0]
	}
	return loc
}

// locationFromReview builds the canonical entry for a resolved record,
// preferring confirmed fields and falling back to the auto-extracted ones.
func locationFromReview(r cafemap.ReviewRecord) (cafemap.CanonicalLocation, bool) {
	name := r.ConfirmedName
	if name == "" {
		name = r.Name
	}
	coord := r.ConfirmedCoordinate
	if coord == nil {
		coord = r.Coordinate
	}
	if name == "" || coord == nil {
		return cafemap.CanonicalLocation{}, false
	}

	address := r.ConfirmedAddress
	if address == "" {
		address = r.AddressText
	}
	tags := r.FinalTags
	if len(tags) == 0 {
		tags = r.Tags
	}

	loc := cafemap.CanonicalLocation{
		Key:            cafemap.CanonicalKey(name, *coord),
		PostID:         r.PostID,
		PostIDs:        []string{r.PostID},
		Name:           name,
		Address:        address,
		Coordinate:     *coord,
		Tags:           append([]string(nil), tags...),
		SourceStage:    r.SourceStage,
		HumanConfirmed: true,
		Permalink:      r.Permalink,
		Thumb:          r.Thumb,
	}
	if len(r.Attrs) > 0 {
		loc.Attrs = map[string]any{}
		for k, v := range r.Attrs {
			loc.Attrs[k] = v
		}
	}
	return loc, true
}
