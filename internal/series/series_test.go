package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/court-booking/internal/model"
)

func members() []model.Reservation {
	return []model.Reservation{
		{ID: "c", Date: "2024-03-18", Status: model.StatusDeclined, GroupID: "g"},
		{ID: "a", Date: "2024-03-04", Status: model.StatusDeclined, GroupID: "g"},
		{ID: "b", Date: "2024-03-11", Status: model.StatusCancelled, GroupID: "g"},
		{ID: "d", Date: "2024-03-25", Status: model.StatusDeclined, GroupID: "g"},
	}
}

func ids(rs []model.Reservation) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestSelect(t *testing.T) {
	all, err := Select(members(), All, Ref{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(all))

	following, err := Select(members(), Following, Ref{Date: "2024-03-11"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, ids(following))

	single, err := Select(members(), Single, Ref{ID: "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(single))
}

func TestSelect_MissingReference(t *testing.T) {
	_, err := Select(members(), Single, Ref{})
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = Select(members(), Following, Ref{})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestBuild_Rename(t *testing.T) {
	label := "Adult league"
	plan, err := Build(members(), Mutation{Scope: Following, Ref: Ref{Date: "2024-03-18"}, Patch: model.FieldPatch{Label: &label}})
	require.NoError(t, err)

	assert.False(t, plan.Cancel)
	assert.Equal(t, []string{"c", "d"}, plan.IDs())
	assert.Equal(t, &label, plan.Patch.Label)
}

func TestBuild_DeleteSkipsTerminal(t *testing.T) {
	plan, err := Build(members(), Mutation{Scope: All, Delete: true})
	require.NoError(t, err)

	assert.True(t, plan.Cancel)
	assert.Equal(t, []string{"a", "c", "d"}, plan.IDs())
	assert.Equal(t, 1, plan.Skipped)
}

func TestBuild_EmptyPatch(t *testing.T) {
	_, err := Build(members(), Mutation{Scope: All})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestParseScope(t *testing.T) {
	for in, want := range map[string]Scope{"": All, "future": Following, "single": Single, "this_and_following": Following} {
		got, err := ParseScope(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseScope("some")
	assert.ErrorIs(t, err, model.ErrValidation)
}
