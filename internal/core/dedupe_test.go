package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIndex(t *testing.T) {
	t.Parallel()

	ix := NewKeyIndex([]string{"email", "admissionNo"})
	ix.AddRecord(map[string]any{"email": "ada@school.test", "admissionNo": "ADM001"})
	ix.Add(map[string]any{"email": "alan@school.test", "admissionNo": "ADM002"}, 3)
	assert.Equal(t, 4, ix.Len())

	dup, found := ix.Find(map[string]any{"email": "ADA@school.test"})
	require.True(t, found, "keys compare case-insensitively")
	assert.Equal(t, Duplicate{Field: "email", Value: "ADA@school.test", Row: 0}, dup)
	assert.Equal(t, `email "ADA@school.test" already exists`, dup.Reason())

	dup, found = ix.Find(map[string]any{"email": "new@school.test", "admissionNo": "ADM002"})
	require.True(t, found, "any natural key collides")
	assert.Equal(t, `admissionNo "ADM002" duplicates row 3`, dup.Reason())

	_, found = ix.Find(map[string]any{"email": "", "admissionNo": nil})
	assert.False(t, found, "blank keys never collide")
}

func TestKeyIndex_FirstOwnerWins(t *testing.T) {
	t.Parallel()

	ix := NewKeyIndex([]string{"name"})
	ix.Add(map[string]any{"name": "5A"}, 2)
	ix.Add(map[string]any{"name": "5a"}, 7)

	dup, found := ix.Find(map[string]any{"name": "5A"})
	require.True(t, found)
	assert.Equal(t, 2, dup.Row)
}

func TestKeyIndex_NumericKeys(t *testing.T) {
	t.Parallel()

	ix := NewKeyIndex([]string{"isbn"})
	ix.AddRecord(map[string]any{"isbn": float64(9780306406157)})

	_, found := ix.Find(map[string]any{"isbn": "9780306406157"})
	assert.True(t, found, "keys compare by rendered value")
}

func TestFindDuplicate_NoNaturalKeys(t *testing.T) {
	t.Parallel()

	def := ModuleDefinition{ID: "timetable"}
	ix := NewKeyIndex(nil)
	_, found := FindDuplicate(def, map[string]any{"day": "Mon"}, ix)
	assert.False(t, found)

	_, found = FindDuplicate(testDefinitions()[2], map[string]any{"name": "5A"}, nil)
	assert.False(t, found)
}
