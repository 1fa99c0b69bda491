package recorder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelfCheckHashAgreesForOwnedAndBorrowed(t *testing.T) {
	frames := []Frame{
		NewFrame("foo", "a.rb", 1),
		NewFrame("bar", "b.rb", 42),
		NewFrame("baz", "c.rb", -1),
	}
	require.True(t, SelfCheckHash(frames))
}

func TestSelfCheckHashEmptyStack(t *testing.T) {
	require.True(t, SelfCheckHash(nil))
}

func TestFramesEqualLengthShortcut(t *testing.T) {
	a := []Frame{NewFrame("foo", "a.rb", 1)}
	b := []Frame{NewFrame("foo", "a.rb", 1), NewFrame("bar", "b.rb", 2)}
	require.False(t, framesEqual(a, b))
}

func TestNewStackRejectsOverLimit(t *testing.T) {
	frames := make([]Frame, MaxFramesLimit+1)
	_, err := newStack(frames)
	require.Error(t, err)
	var ce *ContractError
	require.ErrorAs(t, err, &ce)
}

func TestLineTruncatedTo32Bits(t *testing.T) {
	f := NewFrame("foo", "a.rb", 1<<40+7)
	require.Equal(t, int32(7), f.Line)
}
