package redirect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewState(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		state, err := NewState()
		require.NoError(t, err)
		require.Len(t, state, 64)
		for _, r := range state {
			isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			require.True(t, isAlnum, "unexpected rune %q", r)
		}
		require.False(t, seen[state])
		seen[state] = true
	}
}

func TestParseFragment(t *testing.T) {
	f := parseFragment("_stitch_state=ABC&_stitch_ua=tok%24rtok%24uid%24did&bare&x=a=b")

	state, ok := f.get(FragmentStateKey)
	require.True(t, ok)
	require.Equal(t, "ABC", state)

	ua, _ := f.get(FragmentUserAuth)
	require.Equal(t, "tok$rtok$uid$did", ua)

	bare, ok := f.get("bare")
	require.True(t, ok)
	require.Empty(t, bare)

	x, _ := f.get("x")
	require.Equal(t, "a=b", x)
	require.True(t, f.recognised())
	require.False(t, parseFragment("foo=bar").recognised())
}
