package normalize

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"Listen", "listen"},
		{"  TINSEL\n", "tinsel"},
		{"\tab c ", "ab c"},
		{"Cafe\u0301", "caf\u00e9"}, // combining acute composes
	}
	for _, tt := range tests {
		got, err := Canonicalize(tt.in)
		require.NoError(t, err, "Canonicalize(%q)", tt.in)
		assert.Equal(t, tt.out, got, "Canonicalize(%q)", tt.in)
	}
}

func TestCanonicalizeEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t"} {
		_, err := Canonicalize(in)
		assert.True(t, errors.Is(err, ErrEmptyInput), "Canonicalize(%q) err = %v", in, err)
	}
}

func TestAlphagramKey(t *testing.T) {
	assert.Equal(t, "eilnst", AlphagramKey("listen"))
	assert.Equal(t, "eilnst", AlphagramKey("silent"))
	assert.Equal(t, "a", AlphagramKey("a"))
	assert.Equal(t, "", AlphagramKey(""))
	assert.Equal(t, "ac\u00e9", AlphagramKey("\u00e9ca"))
}

func TestAlphagramKeyIsSortedPermutation(t *testing.T) {
	words := []string{"listen", "enlist", "banana", "zyxwvu", "mississippi", "\u00e9t\u00e9"}
	for _, w := range words {
		key := AlphagramKey(w)
		assert.True(t, IsSorted(key), "key %q of %q not sorted", key, w)
		assert.Equal(t, len([]rune(w)), len([]rune(key)))
		runes := []rune(w)
		slices.Reverse(runes)
		assert.Equal(t, key, AlphagramKey(string(runes)), "reversal of %q changed key", w)
		assert.Equal(t, key, AlphagramKey(key))
	}
}

func TestIsPalindrome(t *testing.T) {
	assert.True(t, IsPalindrome("racecar"))
	assert.True(t, IsPalindrome("a"))
	assert.True(t, IsPalindrome("noon"))
	assert.True(t, IsPalindrome("\u00e9t\u00e9"))
	assert.False(t, IsPalindrome("listen"))
	assert.False(t, IsPalindrome("ab"))
}

func TestDerive(t *testing.T) {
	d, err := Derive(" Level ")
	require.NoError(t, err)
	assert.Equal(t, Derived{Label: "level", Alphagram: "eellv", IsPalindrome: true}, d)

	_, err = Derive(" ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestIsSorted(t *testing.T) {
	assert.True(t, IsSorted("abc"))
	assert.True(t, IsSorted("aab"))
	assert.True(t, IsSorted(""))
	assert.False(t, IsSorted("ba"))
}
