package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLikePattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"臺北", "%臺北%"},
		{"", "%%"},
		{"100%", `%100\%%`},
		{"a_b", `%a\_b%`},
		{`c:\x`, `%c:\\x%`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, likePattern(tt.in))
		})
	}
}

func TestUniqueNonEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, uniqueNonEmpty([]string{"a", "", "b", "a"}))
	assert.Empty(t, uniqueNonEmpty(nil))
}

func TestRunLimit(t *testing.T) {
	assert.Equal(t, 20, runLimit(0))
	assert.Equal(t, 5, runLimit(5))
}

func TestValidIdent(t *testing.T) {
	assert.True(t, validIdent("unified_numbers"))
	assert.True(t, validIdent("t2"))
	assert.False(t, validIdent("2t"))
	assert.False(t, validIdent(""))
	assert.False(t, validIdent("a.b"))
	assert.False(t, validIdent("a b"))
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
