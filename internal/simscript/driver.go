package simscript

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mabhi256/heaprecorder/internal/recorder"
	"github.com/mabhi256/heaprecorder/internal/simhost"
)

func toFrames(spec []FrameSpec) []recorder.Frame {
	frames := make([]recorder.Frame, len(spec))
	for i, f := range spec {
		frames[i] = recorder.NewFrame(f.Func, f.File, f.Line)
	}
	return frames
}

// Run executes every step of a script in order against host and rec,
// blocking the whole time. Used by the one-shot record command.
func Run(host *simhost.Host, rec *recorder.Recorder, script *Script) error {
	ids := make(map[string]int64)

	for i, step := range script.Steps {
		host.Lock()
		err := runStep(host, rec, step, ids)
		host.Unlock()
		if err != nil {
			return fmt.Errorf("simscript: step %d (%s): %w", i, step.Kind, err)
		}
	}
	return nil
}

func runStep(host *simhost.Host, rec *recorder.Recorder, step Step, ids map[string]int64) error {
	switch step.Kind {
	case StepAlloc:
		obj := host.Allocate(step.Class, step.Size, step.Internal)
		if step.ID != "" {
			ids[step.ID] = obj.ID
		}
		if err := rec.Begin(obj, step.Weight, step.Class); err != nil {
			return err
		}
		return rec.End(toFrames(step.Stack))

	case StepFree:
		id, ok := ids[step.Ref]
		if !ok {
			return fmt.Errorf("unknown ref %q", step.Ref)
		}
		host.Free(id)
		return nil

	case StepGC:
		host.AdvanceGeneration()
		rec.UpdateYoung()
		return nil

	case StepSleep:
		host.AdvanceTime(step.DurationMS * int64(time.Millisecond))
		return nil
	}
	return fmt.Errorf("unhandled step kind %q", step.Kind)
}

// Tick is a point-in-time snapshot emitted by RunLive for the watch
// dashboard to render.
type Tick struct {
	Stats     map[string]float64
	LiveCount int
	StepIndex int
}

// RunLive drives a script at wall-clock pace (StepSleep steps become real
// time.Sleep calls) while a second goroutine periodically refreshes the
// recorder's young generation and emits a Tick. It returns when the script
// finishes, the context is cancelled, or either goroutine fails.
func RunLive(ctx context.Context, host *simhost.Host, rec *recorder.Recorder, script *Script, pollInterval time.Duration, ticks chan<- Tick) error {
	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		ids := make(map[string]int64)
		for i, step := range script.Steps {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if step.Kind == StepSleep {
				timer := time.NewTimer(time.Duration(step.DurationMS) * time.Millisecond)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				}
				host.Lock()
				host.AdvanceTime(step.DurationMS * int64(time.Millisecond))
				host.Unlock()
				continue
			}

			host.Lock()
			err := runStep(host, rec, step, ids)
			host.Unlock()
			if err != nil {
				return fmt.Errorf("simscript: step %d (%s): %w", i, step.Kind, err)
			}
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				host.Lock()
				rec.UpdateYoung()
				stats := rec.StateSnapshotFloat()
				live := host.LiveCount()
				host.Unlock()

				select {
				case ticks <- Tick{Stats: stats, LiveCount: live}:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}
