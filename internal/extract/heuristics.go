package extract

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	quotedNameRe  = regexp.MustCompile(`[「『](.+?)[」』]`)
	labeledNameRe = regexp.MustCompile(`(?i)(?:店名|名稱|name)[:：]\s*([^\n,，。]+)`)
	separatorRe   = regexp.MustCompile(`[,，、|।]| - | – | — `)
)

// heuristics holds the compiled name/address rules shared by the text and
// OCR stages.
type heuristics struct {
	addressRes []*regexp.Regexp
}

func newHeuristics(rules Rules) (*heuristics, error) {
	h := &heuristics{}
	for _, pattern := range rules.AddressPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile address pattern %q: %w", pattern, err)
		}
		h.addressRes = append(h.addressRes, re)
	}
	return h, nil
}

// extractAddress returns the first address candidate matched by the ordered
// pattern set, or "".
func (h *heuristics) extractAddress(text string) string {
	for _, re := range h.addressRes {
		if m := re.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

// extractAddress is tried before extractName so the name pass can reject
// candidates that are really the address.
func (h *heuristics) extractName(text string) string {
	if m := quotedNameRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := labeledNameRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	firstLine := ""
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			firstLine = strings.TrimSpace(line)
			break
		}
	}
	if firstLine == "" {
		return ""
	}

	// Leading phrase before a separator, e.g. "Moonlight Cafe, 12 Baker St".
	if loc := separatorRe.FindStringIndex(firstLine); loc != nil {
		head := strings.TrimSpace(firstLine[:loc[0]])
		if h.plausibleName(head) {
			return head
		}
	}
	if h.plausibleName(firstLine) {
		return firstLine
	}
	return ""
}

// plausibleName rejects empty, overly long, or address-shaped candidates.
func (h *heuristics) plausibleName(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < 2 || n > 50 {
		return false
	}
	return h.extractAddress(s) != s
}
