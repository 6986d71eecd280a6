package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/readstack/readstack/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyCitations(t *testing.T) {
	chunks := []*domain.Chunk{
		{ID: "source:abc:match1", Text: "alpha"},
		{ID: "source:abc:match2", Text: "beta"},
		{ID: "source:def", Text: "gamma"},
	}

	t.Run("bracketed full id matches", func(t *testing.T) {
		used := VerifyCitations("The answer [source:abc:match1] is here.", chunks)
		require.Len(t, used, 1)
		assert.Equal(t, "source:abc:match1", used[0].ID)
	})

	t.Run("bracketed simplified id matches", func(t *testing.T) {
		used := VerifyCitations("See [match2] for details.", chunks)
		require.Len(t, used, 1)
		assert.Equal(t, "source:abc:match2", used[0].ID)
	})

	t.Run("bare id substring matches", func(t *testing.T) {
		used := VerifyCitations("mentioned source:def inline", chunks)
		require.Len(t, used, 1)
		assert.Equal(t, "source:def", used[0].ID)
	})

	t.Run("bare simplified substring over-matches by design of the pipeline", func(t *testing.T) {
		// "def" appears inside "defined", which still counts as a citation.
		used := VerifyCitations("the term was defined earlier", chunks)
		require.Len(t, used, 1)
		assert.Equal(t, "source:def", used[0].ID)
	})

	t.Run("uncited chunks are excluded", func(t *testing.T) {
		used := VerifyCitations("nothing relevant here", chunks)
		assert.Empty(t, used)
	})

	t.Run("preserves chunk presentation order regardless of citation order", func(t *testing.T) {
		answer := "later [source:def] then earlier [source:abc:match1]"
		used := VerifyCitations(answer, chunks)
		require.Len(t, used, 2)
		assert.Equal(t, "source:abc:match1", used[0].ID)
		assert.Equal(t, "source:def", used[1].ID)
	})

	t.Run("is idempotent", func(t *testing.T) {
		answer := "cites [source:abc:match1] and [source:def]"
		first := VerifyCitations(answer, chunks)
		second := VerifyCitations(answer, chunks)
		require.Equal(t, len(first), len(second))
		for i := range first {
			assert.Equal(t, first[i].ID, second[i].ID)
			assert.Equal(t, first[i].Text, second[i].Text)
		}
	})

	t.Run("caps cited chunk text at the transport limit", func(t *testing.T) {
		long := &domain.Chunk{ID: "source:long", Text: strings.Repeat("x", 2000)}
		used := VerifyCitations("[source:long]", []*domain.Chunk{long})
		require.Len(t, used, 1)
		assert.Len(t, used[0].Text, 1000)
		// Input chunk is left intact.
		assert.Len(t, long.Text, 2000)
	})

	t.Run("transport cap keeps multibyte cited text valid", func(t *testing.T) {
		long := &domain.Chunk{ID: "source:long", Text: strings.Repeat("a", 999) + "é"}
		used := VerifyCitations("[source:long]", []*domain.Chunk{long})
		require.Len(t, used, 1)
		assert.True(t, utf8.ValidString(used[0].Text))
		assert.Equal(t, long.Text, used[0].Text) // 1000 characters, no cut
	})

	t.Run("skips nil and id-less chunks", func(t *testing.T) {
		used := VerifyCitations("anything", []*domain.Chunk{nil, {ID: "", Text: "orphan"}})
		assert.Empty(t, used)
	})
}
