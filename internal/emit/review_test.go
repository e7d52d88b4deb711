package emit

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cafemap/cafemap/internal/cafemap"
)

func TestWriteReviewCSVExcludesResolvedAndSorts(t *testing.T) {
	t.Parallel()

	records := []cafemap.ReviewRecord{
		{
			ExtractionCandidate: cafemap.ExtractionCandidate{PostID: "p3", Name: "後到的店"},
			Status:              cafemap.ReviewOpen,
			PostText:            "post three",
		},
		{
			ExtractionCandidate: cafemap.ExtractionCandidate{PostID: "p2"},
			Status:              cafemap.ReviewResolved,
		},
		{
			ExtractionCandidate: cafemap.ExtractionCandidate{
				PostID:      "p1",
				Name:        "月光咖啡",
				AddressText: "台北市大安區和平東路二段96號",
				Coordinate:  &cafemap.Coordinate{Lat: 25.0268, Lng: 121.5435},
			},
			Status:   cafemap.ReviewOpen,
			Thumb:    "p1-0.jpg",
			PostText: "post one",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReviewCSV(&buf, records))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"id", "name", "address_candidate", "coords", "thumb", "post"}, rows[0])
	require.Equal(t, []string{"p1", "月光咖啡", "台北市大安區和平東路二段96號", "25.026800,121.543500", "p1-0.jpg", "post one"}, rows[1])
	require.Equal(t, "p3", rows[2][0])
	require.Empty(t, rows[2][3])
}

func TestReadConfirmedCSV(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"id,confirm_name,confirm_address,confirm_coords,final_tags",
		`p1,月光咖啡,,"25.0268,121.5435",dessert|roastery`,
		"p2,,,,",
		"p3,山丘珈琲,新北市板橋區文化路100號,,",
		"p4,壞座標,,not-a-coord,",
	}, "\n")

	rows, rowErrs, err := ReadConfirmedCSV(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, rows, 2)
	require.Equal(t, "p1", rows[0].PostID)
	require.Equal(t, "月光咖啡", rows[0].Name)
	require.NotNil(t, rows[0].Coordinate)
	require.InDelta(t, 25.0268, rows[0].Coordinate.Lat, 1e-9)
	require.Equal(t, []string{"dessert", "roastery"}, rows[0].FinalTags)
	require.Equal(t, "p3", rows[1].PostID)

	require.Len(t, rowErrs, 1)
	var parseErr *cafemap.ParseError
	require.ErrorAs(t, rowErrs[0], &parseErr)
}

func TestReadConfirmedCSVQuotedCoords(t *testing.T) {
	t.Parallel()

	input := "id,confirm_name,confirm_address,confirm_coords,final_tags\n" +
		`p1,店,,"25.0268, 121.5435",` + "\n"

	rows, rowErrs, err := ReadConfirmedCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Empty(t, rowErrs)
	require.Len(t, rows, 1)
	require.InDelta(t, 121.5435, rows[0].Coordinate.Lng, 1e-9)
}

func TestReadConfirmedCSVMissingIDColumn(t *testing.T) {
	t.Parallel()

	_, _, err := ReadConfirmedCSV(strings.NewReader("name,address\nfoo,bar\n"))
	require.Error(t, err)
}

func TestReadConfirmedCSVEmptyInput(t *testing.T) {
	t.Parallel()

	rows, rowErrs, err := ReadConfirmedCSV(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, rows)
	require.Empty(t, rowErrs)
}

func TestParseCoordinate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input   string
		want    cafemap.Coordinate
		wantErr bool
	}{
		{input: "25.0268,121.5435", want: cafemap.Coordinate{Lat: 25.0268, Lng: 121.5435}},
		{input: " 25.0268 , 121.5435 ", want: cafemap.Coordinate{Lat: 25.0268, Lng: 121.5435}},
		{input: "91,0", wantErr: true},
		{input: "0,181", wantErr: true},
		{input: "25.0268", wantErr: true},
		{input: "abc,def", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			coord, err := ParseCoordinate(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, coord)
		})
	}
}
