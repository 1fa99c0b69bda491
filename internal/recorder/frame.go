// Package recorder implements the heap-liveness recorder: the in-memory
// bookkeeping engine a sampling heap profiler uses to remember, for each
// sampled live object, the allocation stack that produced it.
package recorder

import "fmt"

// MaxFramesLimit bounds how many frames a single recorded stack may carry.
// It must stay representable in a uint16 bucket count, mirroring the
// origin implementation's frames_len field.
const MaxFramesLimit = 65535

// hashSeed is the FNV-style offset basis every stack hash folds frames into.
const hashSeed uint64 = 0x811c9dc5

// Frame is one entry of a captured allocation stack. Strings are owned
// copies of whatever the caller supplied; Line is truncated to 32 bits on
// construction, matching the origin format's on-disk frame shape.
type Frame struct {
	FunctionName string
	FileName     string
	Line         int32
}

// NewFrame builds a Frame from a 64-bit line number, truncating it the way
// the reference implementation's wire format does.
func NewFrame(functionName, fileName string, line int64) Frame {
	return Frame{
		FunctionName: functionName,
		FileName:     fileName,
		Line:         int32(line),
	}
}

// Stack is an owned, immutable sequence of Frames. It is always built by
// copying a caller-supplied slice so that recorded stacks outlive whatever
// buffer the profiler used to collect them.
type Stack struct {
	frames []Frame
}

func newStack(frames []Frame) (*Stack, error) {
	if len(frames) > MaxFramesLimit {
		return nil, &ContractError{Op: "stack", Msg: fmt.Sprintf("stack has %d frames, exceeds MaxFramesLimit (%d)", len(frames), MaxFramesLimit)}
	}
	owned := make([]Frame, len(frames))
	copy(owned, frames)
	return &Stack{frames: owned}, nil
}

// Len returns the number of frames in the stack.
func (s *Stack) Len() int { return len(s.frames) }

// Frames returns the stack's frames. The returned slice must not be mutated.
func (s *Stack) Frames() []Frame { return s.frames }

// hashFrames computes the dual-key stack hash. It is the single function
// both the owned-Stack path and the borrowed-slice lookup path call, so
// there is no way for the two forms to diverge (spec's dual-key contract).
func hashFrames(frames []Frame) uint64 {
	h := hashSeed
	for _, f := range frames {
		h = foldFNV(h, f.FunctionName)
		h = foldFNV(h, f.FileName)
		h = foldLine(h, f.Line)
	}
	return h
}

func foldFNV(h uint64, s string) uint64 {
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func foldLine(h uint64, line int32) uint64 {
	u := uint32(line)
	h ^= uint64(u & 0xff)
	h *= 1099511628211
	h ^= uint64((u >> 8) & 0xff)
	h *= 1099511628211
	h ^= uint64((u >> 16) & 0xff)
	h *= 1099511628211
	h ^= uint64((u >> 24) & 0xff)
	h *= 1099511628211
	return h
}

// framesEqual compares two frame sequences with a length-first shortcut,
// as required for the owned-Stack vs. borrowed-slice dual key.
func framesEqual(a, b []Frame) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Line != b[i].Line || a[i].FunctionName != b[i].FunctionName || a[i].FileName != b[i].FileName {
			return false
		}
	}
	return true
}

// SelfCheckHash verifies the dual-key contract (spec's property P2) for a
// chosen frame sequence: hashing and comparing an owned Stack built from
// frames must agree with hashing and comparing the borrowed slice itself.
func SelfCheckHash(frames []Frame) bool {
	stack, err := newStack(frames)
	if err != nil {
		return false
	}
	if hashFrames(stack.Frames()) != hashFrames(frames) {
		return false
	}
	return framesEqual(stack.Frames(), frames)
}
