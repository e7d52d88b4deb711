package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cafemap/cafemap/internal/cafemap"
)

func TestUpsertPostsSkipsExisting(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	added, err := st.UpsertPosts(ctx, []cafemap.Post{
		{ID: "p1", Text: "original"},
		{ID: "p2"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, added)

	added, err = st.UpsertPosts(ctx, []cafemap.Post{
		{ID: "p1", Text: "mutated"},
		{ID: "p3"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, added)

	posts, err := st.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	require.Equal(t, []string{"p1", "p2", "p3"}, []string{posts[0].ID, posts[1].ID, posts[2].ID})
	// Stored posts never change on rerun.
	require.Equal(t, "original", posts[0].Text)
}

func TestReviewLifecycle(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	_, found, err := st.GetReview(ctx, "p1")
	require.NoError(t, err)
	require.False(t, found)

	open := cafemap.ReviewRecord{
		ExtractionCandidate: cafemap.ExtractionCandidate{PostID: "p1", Name: "月光咖啡"},
		Status:              cafemap.ReviewOpen,
	}
	resolved := cafemap.ReviewRecord{
		ExtractionCandidate: cafemap.ExtractionCandidate{PostID: "p2"},
		Status:              cafemap.ReviewResolved,
	}
	require.NoError(t, st.PutReview(ctx, open))
	require.NoError(t, st.PutReview(ctx, resolved))

	onlyOpen, err := st.ListReviews(ctx, false)
	require.NoError(t, err)
	require.Len(t, onlyOpen, 1)
	require.Equal(t, "p1", onlyOpen[0].PostID)

	all, err := st.ListReviews(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestCanonicalRoundTrip(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	loc := cafemap.CanonicalLocation{
		Key:        "月光咖啡@25.0268,121.5435",
		PostID:     "p1",
		PostIDs:    []string{"p1"},
		Name:       "月光咖啡",
		Coordinate: cafemap.Coordinate{Lat: 25.0268, Lng: 121.5435},
	}
	require.NoError(t, st.PutCanonical(ctx, loc))

	got, found, err := st.GetCanonical(ctx, loc.Key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, loc, got)

	loc.Tags = []string{"dessert"}
	require.NoError(t, st.PutCanonical(ctx, loc))

	locs, err := st.ListCanonical(ctx)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	require.Equal(t, []string{"dessert"}, locs[0].Tags)
}
