package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase passthrough", "arc", "arc"},
		{"mixed case", "My Endpoint", "my-endpoint"},
		{"punctuation run collapses", "GPT-4 (azure)!!", "gpt-4-azure"},
		{"leading and trailing junk", "  --hello--  ", "hello"},
		{"digits kept", "bench 2024 v2", "bench-2024-v2"},
		{"unicode stripped", "café münchen", "caf-m-nchen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Slugify(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlugifyIdempotent(t *testing.T) {
	inputs := []string{"My Endpoint", "a--b", "Recipe #1", "x"}
	for _, in := range inputs {
		once, err := Slugify(in)
		require.NoError(t, err)
		twice, err := Slugify(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "slugify must be idempotent for %q", in)
	}
}

func TestSlugifyCharset(t *testing.T) {
	got, err := Slugify("Weird___Name!!!With   Spaces")
	require.NoError(t, err)
	for _, r := range got {
		valid := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
		assert.True(t, valid, "unexpected rune %q in slug %q", r, got)
	}
}

func TestSlugifyEmpty(t *testing.T) {
	for _, in := range []string{"", "!!!", "   ", "日本語"} {
		_, err := Slugify(in)
		require.Error(t, err, "input %q must not produce a slug", in)
		assert.True(t, IsValidation(err))
	}
}
