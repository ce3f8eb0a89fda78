// Package update drives the regeneration pipeline: one cancellable run at a
// time across every configured target, with fractional progress reporting
// and workspace consistency guarantees on cancellation and failure.
//
// The coordination contract, in short:
//
//   - At most one run executes at any time. Starting a new run cancels the
//     previous one and blocks until its termination is observed, so two
//     pipelines can never write to the same workspace concurrently.
//   - Cancellation is cooperative and checked only at explicit points; an
//     in-flight generation call or git operation always runs to completion.
//   - A cancelled run reverts every target it already wrote before exiting,
//     so partial generation is never left half-applied across targets.
package update

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stack-auth/blacksmith/internal/generator"
	"github.com/stack-auth/blacksmith/internal/workspace"
)

// specCommitMessage is the fixed message used when auto-checkpointing the
// specification workspace at the end of a run. The specification has no
// separate human approval step, so it is committed every run.
const specCommitMessage = "Update specification"

// Fraction schedule: the first quarter of the progress range covers setup
// (workspace reset and specification read), the remaining three quarters are
// divided evenly across targets.
const (
	fractionEnsured   = 0.10
	fractionBaselined = 0.20
	fractionSpecRead  = 0.25
	fractionTargets   = 0.75
)

// run is one execution of the pipeline. Its done channel closes when the
// pipeline has fully terminated, including cancellation unwinding; the
// supersession wait in StartUpdate blocks on it.
type run struct {
	id        string
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	processed []string
}

// Orchestrator owns the current-run pointer and the Progress singleton.
// There is no ambient global state: one orchestrator is constructed per
// process and injected wherever needed.
type Orchestrator struct {
	store  *workspace.Store
	gen    generator.Generator
	logger *zap.Logger

	// startMu serializes supersession itself: concurrent StartUpdate calls
	// must cancel-and-wait one at a time or two pipelines could be spawned
	// against the same workspaces.
	startMu sync.Mutex

	// mu guards current and progress.
	mu       sync.Mutex
	current  *run
	progress Progress
}

// NewOrchestrator creates an orchestrator over the given workspace store and
// generation capability.
func NewOrchestrator(store *workspace.Store, gen generator.Generator, logger *zap.Logger) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("workspace store is required")
	}
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:  store,
		gen:    gen,
		logger: logger.Named("update"),
	}, nil
}

// StartUpdate begins a new regeneration run and returns immediately with an
// acknowledgement; the pipeline continues asynchronously and the caller
// polls Progress for the outcome.
//
// If a run is already in flight it is cancelled and StartUpdate blocks until
// that run's termination is observed. The wait is mandatory: a new run must
// not begin mutating workspaces while the previous one is still writing
// files or awaiting a generation call.
func (o *Orchestrator) StartUpdate(ctx context.Context) (RunInfo, error) {
	o.startMu.Lock()
	defer o.startMu.Unlock()

	o.mu.Lock()
	prev := o.current
	o.mu.Unlock()

	if prev != nil {
		o.logger.Info("superseding in-flight run", zap.String("run_id", prev.id))
		runsSuperseded.Inc()
		prev.cancel()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return RunInfo{}, fmt.Errorf("waiting for superseded run: %w", ctx.Err())
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:        uuid.NewString(),
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	o.mu.Lock()
	o.current = r
	o.progress = Progress{
		Fraction:  0,
		Message:   "starting",
		IsRunning: true,
		StartedAt: r.startedAt,
	}
	o.mu.Unlock()

	runsStarted.Inc()
	runInFlight.Set(1)
	o.logger.Info("run started", zap.String("run_id", r.id))

	go o.pipeline(runCtx, r)

	return RunInfo{RunID: r.id, StartedAt: r.startedAt}, nil
}

// Progress returns a snapshot of the progress singleton. Never blocks.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// pipeline runs one regeneration to termination and records the terminal
// progress. It is the only writer of progress while the run it belongs to is
// current.
func (o *Orchestrator) pipeline(ctx context.Context, r *run) {
	defer close(r.done)
	defer r.cancel()
	defer runInFlight.Set(0)

	summary, err := o.execute(ctx, r)

	switch {
	case errors.Is(err, context.Canceled):
		// Superseded: partial writes were unwound in execute. Exit quietly;
		// the superseding run resets progress as soon as the done channel
		// closes.
		o.setTerminal(r, func(p *Progress) {
			p.IsRunning = false
			p.Message = "cancelled"
		})
		o.logger.Info("run cancelled", zap.String("run_id", r.id))
	case err != nil:
		// Keep the last known fraction so callers can see where it stopped.
		o.setTerminal(r, func(p *Progress) {
			p.IsRunning = false
			p.Error = err.Error()
		})
		o.logger.Error("run failed", zap.String("run_id", r.id), zap.Error(err))
	default:
		o.setTerminal(r, func(p *Progress) {
			p.Fraction = 1
			p.IsRunning = false
			p.Message = summary
		})
		o.logger.Info("run completed", zap.String("run_id", r.id), zap.String("summary", summary))
	}

	// Clear the current-run pointer only if this run still owns it. A
	// superseding run may already have replaced it; never clear someone
	// else's state.
	o.mu.Lock()
	if o.current == r {
		o.current = nil
	}
	o.mu.Unlock()
}

// execute performs the pipeline steps and returns the success summary.
// Cancellation surfaces as context.Canceled after partial writes have been
// reverted.
func (o *Orchestrator) execute(ctx context.Context, r *run) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// Every workspace must exist and be backed by history before anything
	// is reset or written. A workspace deleted out from under the daemon is
	// recreated with a fresh baseline.
	o.setProgress(r, fractionEnsured, "preparing workspaces")

	if err := o.store.English().Ensure(ctx); err != nil {
		return "", fmt.Errorf("ensuring specification workspace: %w", err)
	}
	targets := o.store.Targets()
	for _, ws := range targets {
		if err := ws.Ensure(ctx); err != nil {
			return "", fmt.Errorf("ensuring target %s: %w", ws.ID(), err)
		}
	}

	// Reset each target to a known checkpointed baseline. Stray edits left
	// by a manual save must not leak into the generated diff.
	for _, ws := range targets {
		if err := ws.DiscardUnstaged(ctx); err != nil {
			return "", fmt.Errorf("resetting target %s: %w", ws.ID(), err)
		}
	}
	o.setProgress(r, fractionBaselined, "workspaces reset")

	if err := ctx.Err(); err != nil {
		return "", err
	}

	// One specification snapshot for the whole run: read once, reused for
	// every target.
	specFiles, err := o.store.English().ReadFiles(ctx)
	if err != nil {
		return "", fmt.Errorf("reading specification: %w", err)
	}
	o.setProgress(r, fractionSpecRead, "specification read")

	var skipped []string
	for i, ws := range targets {
		if err := ctx.Err(); err != nil {
			o.revertProcessed(r)
			return "", err
		}

		currentFiles, err := ws.ReadFiles(ctx)
		if err != nil {
			return "", fmt.Errorf("reading target %s: %w", ws.ID(), err)
		}

		// Not cancellable mid-flight: once invoked, the generation call is
		// awaited to completion, success or failure.
		files, genErr := o.gen.Generate(ctx, ws.ID(), specFiles, currentFiles)

		if err := ctx.Err(); err != nil {
			// Cancelled while generating: nothing from this target was
			// written yet, but everything processed so far must go.
			o.revertProcessed(r)
			return "", err
		}

		switch {
		case genErr != nil:
			generationFailures.WithLabelValues(ws.ID()).Inc()
			skipped = append(skipped, ws.ID())
			o.logger.Warn("generation failed, target skipped",
				zap.String("run_id", r.id),
				zap.String("target", ws.ID()),
				zap.Error(genErr))
		case len(files) == 0:
			skipped = append(skipped, ws.ID())
			o.logger.Warn("generation produced no files, target skipped",
				zap.String("run_id", r.id),
				zap.String("target", ws.ID()))
		default:
			if err := ws.WriteFiles(ctx, files); err != nil {
				return "", fmt.Errorf("writing target %s: %w", ws.ID(), err)
			}
			r.processed = append(r.processed, ws.ID())
			targetsRegenerated.Inc()
		}

		frac := fractionSpecRead + fractionTargets*float64(i+1)/float64(len(targets))
		o.setProgress(r, frac, fmt.Sprintf("processed %s", ws.ID()))
	}

	// Stage everything: the specification workspace and every target. The
	// specification is then auto-committed; targets stay staged and
	// uncommitted, awaiting explicit approve or reject.
	if err := o.store.English().StageAll(ctx); err != nil {
		return "", fmt.Errorf("staging specification: %w", err)
	}
	for _, ws := range targets {
		if err := ws.StageAll(ctx); err != nil {
			return "", fmt.Errorf("staging target %s: %w", ws.ID(), err)
		}
	}

	if _, _, err := o.store.English().CommitIfStaged(ctx, specCommitMessage); err != nil {
		// A failed specification checkpoint fails the run, but already
		// written target files stay staged for review.
		return "", fmt.Errorf("checkpointing specification: %w", err)
	}

	return buildSummary(len(r.processed), len(targets), skipped), nil
}

// revertProcessed returns every target written this run to its pre-run
// baseline. Generated output is unstaged until the final staging step, so
// discarding unstaged changes and untracked files is an exact unwind.
//
// Runs on a fresh context: the run context is cancelled by definition here.
func (o *Orchestrator) revertProcessed(r *run) {
	ctx := context.Background()
	for _, id := range r.processed {
		ws, err := o.store.Target(id)
		if err != nil {
			continue
		}
		if err := ws.DiscardUnstaged(ctx); err != nil {
			o.logger.Error("failed to revert target after cancellation",
				zap.String("run_id", r.id),
				zap.String("target", id),
				zap.Error(err))
		}
	}
	r.processed = nil
}

// setProgress updates fraction and message for a live run. Fraction is
// clamped to be monotonically non-decreasing within the run.
func (o *Orchestrator) setProgress(r *run, fraction float64, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != r {
		return
	}
	if fraction > o.progress.Fraction {
		o.progress.Fraction = fraction
	}
	o.progress.Message = message
}

// setTerminal applies a terminal mutation to progress if the run still owns
// it.
func (o *Orchestrator) setTerminal(r *run, mutate func(*Progress)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != r {
		return
	}
	mutate(&o.progress)
}

func buildSummary(processed, total int, skipped []string) string {
	if len(skipped) == 0 {
		return fmt.Sprintf("regenerated %d of %d targets", processed, total)
	}
	return fmt.Sprintf("regenerated %d of %d targets (skipped: %s)",
		processed, total, strings.Join(skipped, ", "))
}
