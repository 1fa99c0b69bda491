package simscript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValidScript(t *testing.T) {
	yml := `
steps:
  - kind: alloc
    id: a1
    class: Widget
    size: 64
    weight: 1
    stack:
      - func: makeWidget
        file: widget.rb
        line: 10
  - kind: gc
  - kind: free
    ref: a1
  - kind: sleep
    duration_ms: 500
`
	script, err := Parse([]byte(yml))
	require.NoError(t, err)
	require.Len(t, script.Steps, 4)
	require.Equal(t, StepAlloc, script.Steps[0].Kind)
	require.Equal(t, "Widget", script.Steps[0].Class)
	require.Equal(t, StepFree, script.Steps[2].Kind)
	require.Equal(t, "a1", script.Steps[2].Ref)
}

func TestParseRejectsAllocWithoutStack(t *testing.T) {
	yml := `
steps:
  - kind: alloc
    class: Widget
`
	_, err := Parse([]byte(yml))
	require.Error(t, err)
}

func TestParseRejectsFreeWithoutRef(t *testing.T) {
	yml := `
steps:
  - kind: free
`
	_, err := Parse([]byte(yml))
	require.Error(t, err)
}

func TestParseRejectsUnknownKind(t *testing.T) {
	yml := `
steps:
  - kind: teleport
`
	_, err := Parse([]byte(yml))
	require.Error(t, err)
}
