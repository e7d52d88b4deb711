package emit

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/cafemap/cafemap/internal/cafemap"
)

var reviewHeader = []string{"id", "name", "address_candidate", "coords", "thumb", "post"}

var confirmedHeader = []string{"id", "confirm_name", "confirm_address", "confirm_coords", "final_tags"}

// WriteReviewCSV writes every still-open review record as one CSV row,
// ordered by post id ascending. Resolved records are excluded so already
// merged corrections never resurface in the queue.
func WriteReviewCSV(w io.Writer, records []cafemap.ReviewRecord) error {
	open := make([]cafemap.ReviewRecord, 0, len(records))
	for _, r := range records {
		if r.Status != cafemap.ReviewResolved {
			open = append(open, r)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].PostID < open[j].PostID })

	cw := csv.NewWriter(w)
	if err := cw.Write(reviewHeader); err != nil {
		return fmt.Errorf("write review header: %w", err)
	}
	for _, r := range open {
		row := []string{
			r.PostID,
			r.Name,
			r.AddressText,
			formatCoordinate(r.Coordinate),
			r.Thumb,
			r.PostText,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write review row %s: %w", r.PostID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush review csv: %w", err)
	}
	return nil
}

// ReadConfirmedCSV parses the human-edited review artifact. Rows with every
// confirm field empty are dropped here so merge only sees actionable rows.
// A malformed coordinate is a ParseError for that row; the row is skipped
// and the error reported alongside the parsed remainder.
func ReadConfirmedCSV(r io.Reader) ([]cafemap.ConfirmedRow, []error, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read confirmed header: %w", err)
	}
	idx := headerIndex(header)
	if _, ok := idx["id"]; !ok {
		return nil, nil, fmt.Errorf("confirmed csv missing id column (want %s)", strings.Join(confirmedHeader, ","))
	}

	var (
		rows    []cafemap.ConfirmedRow
		rowErrs []error
	)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read confirmed row: %w", err)
		}
		field := func(name string) string {
			i, ok := idx[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		row := cafemap.ConfirmedRow{
			PostID:  field("id"),
			Name:    field("confirm_name"),
			Address: field("confirm_address"),
		}
		if raw := field("confirm_coords"); raw != "" {
			coord, err := ParseCoordinate(raw)
			if err != nil {
				rowErrs = append(rowErrs, err)
				continue
			}
			row.Coordinate = &coord
		}
		if raw := field("final_tags"); raw != "" {
			for _, tag := range strings.Split(raw, "|") {
				if tag = strings.TrimSpace(tag); tag != "" {
					row.FinalTags = append(row.FinalTags, tag)
				}
			}
		}
		if row.PostID == "" || row.Empty() {
			continue
		}
		rows = append(rows, row)
	}
	return rows, rowErrs, nil
}

// ParseCoordinate parses "lat,lng".
func ParseCoordinate(s string) (cafemap.Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return cafemap.Coordinate{}, &cafemap.ParseError{
			Field: "coords",
			Value: s,
			Err:   fmt.Errorf("want lat,lng"),
		}
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return cafemap.Coordinate{}, &cafemap.ParseError{Field: "coords", Value: s, Err: err}
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return cafemap.Coordinate{}, &cafemap.ParseError{Field: "coords", Value: s, Err: err}
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return cafemap.Coordinate{}, &cafemap.ParseError{
			Field: "coords",
			Value: s,
			Err:   fmt.Errorf("out of range"),
		}
	}
	return cafemap.Coordinate{Lat: lat, Lng: lng}, nil
}

func formatCoordinate(c *cafemap.Coordinate) string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(strings.ToLower(name))] = i
	}
	return idx
}
