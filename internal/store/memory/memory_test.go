package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/schoolbulk/internal/core"
)

func TestStore_Records(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	fields := map[string]any{"name": "Asha", "email": "asha@example.com"}
	id, err := s.CreateRecord(ctx, "school-1", "students", fields)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = s.CreateRecord(ctx, "school-2", "students", map[string]any{"name": "Other"})
	require.NoError(t, err)

	fields["name"] = "mutated"

	got, err := s.ListRecords(ctx, "school-1", "students")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, "Asha", got[0].Fields["name"])

	empty, err := s.ListRecords(ctx, "school-1", "teachers")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_HistoryNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	for i, module := range []string{"students", "teachers", "students"} {
		require.NoError(t, s.AppendHistory(ctx, &core.ImportHistoryEntry{
			SchoolID:  "school-1",
			Module:    module,
			TotalRows: i + 1,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.AppendHistory(ctx, &core.ImportHistoryEntry{SchoolID: "school-2", Module: "students"}))

	all, err := s.ListHistory(ctx, core.HistoryFilter{SchoolID: "school-1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 3, all[0].TotalRows)
	assert.Equal(t, 1, all[2].TotalRows)
	for _, e := range all {
		assert.NotEmpty(t, e.ID)
	}

	students, err := s.ListHistory(ctx, core.HistoryFilter{SchoolID: "school-1", Module: "students", Limit: 1})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, 3, students[0].TotalRows)
}

func TestStore_CreateAccountRejectsDuplicateEmail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	_, err := s.CreateAccount(ctx, core.AccountRequest{Email: "Asha@Example.com", Role: core.RoleStudent})
	require.NoError(t, err)

	_, err = s.CreateAccount(ctx, core.AccountRequest{Email: "asha@example.com", Role: core.RoleParent})
	require.ErrorIs(t, err, ErrAccountExists)
	assert.Equal(t, 1, s.AccountCount())
}
