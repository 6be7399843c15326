// package executor replays compiled execution plans against a device. Pass
// recording is fanned out across a worker pool, since the plan already fixed
// a race-free order and each pass records into its own command encoder. The
// recorded batches are then submitted in plan order in one batched submit, so
// every wait in the plan is realized by the device timeline's submission
// order.
package executor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-graph/engine/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph"
	"github.com/pkg/errors"
)

// Executor runs compiled plans. One Executor serves many frames; Execute may
// not be called concurrently with itself.
type Executor interface {
	// Execute records every pass in the plan and submits the frame as one
	// batch. When the context is cancelled before submission the frame is
	// abandoned: recorded work is released and nothing reaches the device.
	//
	// Parameters:
	//   - ctx: cancellation for abandoning the frame pre-submit
	//   - plan: the compiled plan to replay
	//   - frameIndex: the frame number, handed to pass callbacks
	//
	// Returns:
	//   - error: the first pass or device error, with its pass named
	Execute(ctx context.Context, plan *graph.ExecutionPlan, frameIndex uint64) error
}

// executor is the implementation of the Executor interface.
type executor struct {
	dev    device.Device
	pool   worker.DynamicWorkerPool
	taskID int
}

var _ Executor = &executor{}

// ExecutorOption is a functional option for configuring an Executor.
type ExecutorOption func(*executor)

// WithRecordingWorkers sets the worker-pool size used for parallel pass
// recording.
//
// Parameters:
//   - n: the number of workers, minimum 1
//
// Returns:
//   - ExecutorOption: option function to apply
func WithRecordingWorkers(n int) ExecutorOption {
	return func(e *executor) {
		if n > 0 {
			e.pool = worker.NewDynamicWorkerPool(n, 256, 1*time.Second)
		}
	}
}

// NewExecutor creates an Executor over the given device.
//
// Parameters:
//   - dev: the device plans are replayed against
//   - options: functional options to configure the executor
//
// Returns:
//   - Executor: the newly created executor
func NewExecutor(dev device.Device, options ...ExecutorOption) Executor {
	e := &executor{dev: dev}
	for _, option := range options {
		option(e)
	}
	if e.pool == nil {
		e.pool = worker.NewDynamicWorkerPool(runtime.NumCPU(), 256, 1*time.Second)
	}
	return e
}

func (e *executor) Execute(ctx context.Context, plan *graph.ExecutionPlan, frameIndex uint64) error {
	entries := plan.Entries()
	if len(entries) == 0 {
		return nil
	}

	batches := make([]device.CommandBatch, len(entries))
	errs := make([]error, len(entries))

	var wg sync.WaitGroup
	for pos := range entries {
		entry := &entries[pos]
		slot := pos
		id := e.taskID
		e.taskID++

		wg.Add(1)
		e.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()

				rec, err := e.dev.NewRecorder(entry.Pass.Name())
				if err != nil {
					errs[slot] = errors.Wrapf(err, "executor: pass %q", entry.Pass.Name())
					return nil, nil
				}
				passCtx := &graph.PassContext{
					Recorder:   rec,
					Bindings:   entry.Bindings,
					FrameIndex: frameIndex,
				}
				if err := entry.Pass.Execute(passCtx); err != nil {
					errs[slot] = errors.Wrapf(err, "executor: pass %q", entry.Pass.Name())
					return nil, nil
				}
				batch, err := rec.Finish()
				if err != nil {
					errs[slot] = errors.Wrapf(err, "executor: pass %q", entry.Pass.Name())
					return nil, nil
				}
				batches[slot] = batch
				return nil, nil
			},
		})
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			releaseBatches(batches)
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		// Frame abandoned before submission.
		releaseBatches(batches)
		return err
	}

	// Compute-only passes go through the compute submission path when they
	// form a prefix of the plan, which the culling-then-draw frame shape
	// always produces. Any other arrangement falls back to one ordered
	// submit, since splitting there could reorder work against its waits.
	split := computePrefixLen(entries)
	if split > 0 && split < len(entries) {
		if err := e.dev.SubmitCompute(batches[:split]...); err != nil {
			releaseBatches(batches[split:])
			return errors.Wrap(err, "executor: compute submit")
		}
		if err := e.dev.Submit(batches[split:]...); err != nil {
			return errors.Wrap(err, "executor: submit")
		}
		return nil
	}
	if split == len(entries) {
		if err := e.dev.SubmitCompute(batches...); err != nil {
			return errors.Wrap(err, "executor: compute submit")
		}
		return nil
	}
	if err := e.dev.Submit(batches...); err != nil {
		return errors.Wrap(err, "executor: submit")
	}
	return nil
}

// computePrefixLen returns the length of the leading run of compute-only
// passes, or 0 when a compute-only pass appears after a graphics pass.
func computePrefixLen(entries []graph.PlanEntry) int {
	prefix := 0
	for i := range entries {
		if !entries[i].Pass.ComputeOnly() {
			for j := i + 1; j < len(entries); j++ {
				if entries[j].Pass.ComputeOnly() {
					return 0
				}
			}
			return prefix
		}
		prefix++
	}
	return prefix
}

func releaseBatches(batches []device.CommandBatch) {
	for _, b := range batches {
		if b != nil {
			b.Release()
		}
	}
}
