package extract

import (
	"sort"
	"strings"
)

// tagger matches post and OCR text against the configured keyword mapping.
type tagger struct {
	rules Rules
}

// infer returns the sorted tag set and the attribute map for the given
// text. Matching is case-insensitive and idempotent: repeated keywords add
// nothing.
func (t *tagger) infer(text string) ([]string, map[string]any) {
	lower := strings.ToLower(text)

	tagSet := map[string]struct{}{}
	for tag, keywords := range t.rules.TagKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				tagSet[tag] = struct{}{}
				break
			}
		}
	}
	tags := make([]string, 0, len(tagSet))
	for tag := range tagSet {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	attrs := map[string]any{}
	for attr, keywords := range t.rules.AttrKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				attrs[attr] = true
				break
			}
		}
	}
	if seat := t.seatSize(lower); seat != "" {
		attrs["seat"] = seat
	}
	if len(tags) == 0 {
		tags = nil
	}
	if len(attrs) == 0 {
		attrs = nil
	}
	return tags, attrs
}

func (t *tagger) seatSize(lower string) string {
	for _, kw := range t.rules.SeatFew {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return "few"
		}
	}
	for _, kw := range t.rules.SeatMany {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return "many"
		}
	}
	for _, kw := range t.rules.SeatSome {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return "some"
		}
	}
	return ""
}
