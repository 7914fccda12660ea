package cartstore

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runRepositoryContract exercises behaviour both backends must share.
func runRepositoryContract(t *testing.T, repo Repository) {
	ctx := context.Background()

	lines, err := repo.ListLines(ctx, "m-1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	first, err := repo.AddOrMerge(ctx, "m-1", "p1", 2)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, 2, first.Qty)

	merged, err := repo.AddOrMerge(ctx, "m-1", "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, first.ID, merged.ID)
	assert.Equal(t, 5, merged.Qty)

	_, err = repo.AddOrMerge(ctx, "m-1", "p2", 1)
	require.NoError(t, err)
	_, err = repo.AddOrMerge(ctx, "m-2", "p1", 7)
	require.NoError(t, err)

	lines, err = repo.ListLines(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.ElementsMatch(t, []string{"p1", "p2"}, []string{lines[0].ProductID, lines[1].ProductID})

	require.NoError(t, repo.UpdateQty(ctx, first.ID, 9))
	got, err := repo.GetLine(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Qty)

	assert.ErrorIs(t, repo.UpdateQty(ctx, first.ID, 0), ErrInvalidQty)
	assert.ErrorIs(t, repo.UpdateQty(ctx, "missing", 1), ErrLineNotFound)
	_, err = repo.AddOrMerge(ctx, "m-1", "p3", 0)
	assert.ErrorIs(t, err, ErrInvalidQty)

	require.NoError(t, repo.DeleteLine(ctx, first.ID))
	assert.ErrorIs(t, repo.DeleteLine(ctx, first.ID), ErrLineNotFound)
	_, err = repo.GetLine(ctx, first.ID)
	assert.ErrorIs(t, err, ErrLineNotFound)

	n, err := repo.DeleteMember(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	lines, err = repo.ListLines(ctx, "m-2")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestMemoryRepository(t *testing.T) {
	runRepositoryContract(t, NewMemoryRepository())
}

func TestMemberClearer(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	_, err := repo.AddOrMerge(ctx, "m-1", "p1", 1)
	require.NoError(t, err)

	c := MemberClearer{Repo: repo, Log: discardLogger()}
	assert.True(t, c.ClearMember(ctx, "m-1"))
	assert.False(t, c.ClearMember(ctx, "m-1"))
}

type brokenRepository struct {
	Repository
}

func (brokenRepository) DeleteMember(context.Context, string) (int64, error) {
	return 0, errors.New("mongo unavailable")
}

func TestMemberClearer_LogsRepositoryFailure(t *testing.T) {
	log, hook := logtest.NewNullLogger()

	c := MemberClearer{Repo: brokenRepository{}, Log: log}
	assert.False(t, c.ClearMember(context.Background(), "m-1"))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "failed to delete cart", entry.Message)
	assert.Equal(t, "m-1", entry.Data["member_id"])
	assert.NotNil(t, entry.Context)
}
