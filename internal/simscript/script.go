// Package simscript defines a small YAML allocation script format used to
// drive the recorder through a reproducible sequence of events: allocate an
// object with a stack trace, free one, advance the GC generation, or let
// simulated time pass. The record and watch commands both run these scripts
// against a simhost.Host.
package simscript

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StepKind names the single operation a Step performs.
type StepKind string

const (
	StepAlloc StepKind = "alloc"
	StepFree  StepKind = "free"
	StepGC    StepKind = "gc"
	StepSleep StepKind = "sleep"
)

// FrameSpec is one entry of a scripted allocation's stack trace.
type FrameSpec struct {
	Func string `yaml:"func"`
	File string `yaml:"file"`
	Line int64  `yaml:"line"`
}

// Step is a single scripted event. Which fields matter depends on Kind.
type Step struct {
	Kind StepKind `yaml:"kind"`

	// alloc
	ID       string      `yaml:"id,omitempty"`       // name this allocation is referred to by later
	Class    string      `yaml:"class,omitempty"`
	Size     uint64      `yaml:"size,omitempty"`
	Weight   uint32      `yaml:"weight,omitempty"`
	Internal bool        `yaml:"internal,omitempty"` // reports unrecordable to the host
	Stack    []FrameSpec `yaml:"stack,omitempty"`

	// free
	Ref string `yaml:"ref,omitempty"` // the id an earlier alloc step was given

	// sleep
	DurationMS int64 `yaml:"duration_ms,omitempty"`
}

// Script is an ordered sequence of steps.
type Script struct {
	Steps []Step `yaml:"steps"`
}

// Load reads and parses a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("simscript: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a script from raw YAML.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("simscript: parse: %w", err)
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return nil, fmt.Errorf("simscript: step %d: %w", i, err)
		}
	}
	return &s, nil
}

func (s Step) validate() error {
	switch s.Kind {
	case StepAlloc:
		if s.Class == "" {
			return fmt.Errorf("alloc step missing class")
		}
		if len(s.Stack) == 0 {
			return fmt.Errorf("alloc step %q missing stack", s.ID)
		}
	case StepFree:
		if s.Ref == "" {
			return fmt.Errorf("free step missing ref")
		}
	case StepGC, StepSleep:
		// no required fields
	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}
	return nil
}
