package room

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewName(t *testing.T) {
	name := NewName(nil)
	parts := strings.Split(name, "-")
	require.Len(t, parts, 4)
	require.Contains(t, moods, parts[0])
	require.Contains(t, grains, parts[1])
	require.Contains(t, notes, parts[2])
	require.Contains(t, places, parts[3])
}

func TestNewNameSkipsTaken(t *testing.T) {
	var asked []string
	name := NewName(func(candidate string) bool {
		asked = append(asked, candidate)
		return len(asked) < 3
	})
	require.Len(t, asked, 3)
	require.Equal(t, asked[2], name)

	always := NewName(func(string) bool { return true })
	require.Len(t, strings.Split(always, "-"), 5)
}
