package reconcile

import (
	"context"
	"log/slog"

	"proxyencoder/internal/logging"
	"proxyencoder/internal/services"
)

// ErrAborted reports that the operator declined to queue.
var ErrAborted = services.Wrap(services.ErrAborted, "reconcile", "confirm", "queueing declined", nil)

// Prompter asks the operator to decide.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
	Choose(ctx context.Context, question string, choices []string) (string, error)
}

// Linker attaches existing proxy files to clips in the editor.
type Linker interface {
	// LinkClips links each clip's UnlinkedProxy and splits the input into
	// successes and failures.
	LinkClips(ctx context.Context, clips []Clip) (linked, failed []Clip)
	// Relink attaches path to clip's media.
	Relink(ctx context.Context, clip Clip, path string) error
}

// Outcome is the overall result of a run.
type Outcome int

const (
	OutcomeQueue Outcome = iota
	OutcomeAllLinked
	OutcomeNothingToQueue
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllLinked:
		return "all_linked"
	case OutcomeNothingToQueue:
		return "nothing_to_queue"
	default:
		return "queue"
	}
}

// Plan is what a run decided.
type Plan struct {
	Outcome Outcome
	Jobs    []Clip
	Linked  int
	Skipped int
	Moved   int
	Dropped int
}

// Reconciler runs the handlers against a set of clips.
type Reconciler struct {
	Prompter  Prompter
	Linker    Linker
	Root      string
	Ext       string
	Overwrite bool

	logger *slog.Logger
}

// New builds a Reconciler.
func New(prompter Prompter, linker Linker, root, ext string, overwrite bool, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		Prompter:  prompter,
		Linker:    linker,
		Root:      root,
		Ext:       ext,
		Overwrite: overwrite,
		logger:    logging.NewComponentLogger(logger, "reconcile"),
	}
}

type handler func(context.Context, *RunState, []Clip) ([]Clip, error)

// Run executes every handler in order and returns the plan.
func (r *Reconciler) Run(ctx context.Context, clips []Clip) (Plan, error) {
	if r.logger == nil {
		r.logger = logging.NewComponentLogger(nil, "reconcile")
	}
	st := &RunState{}
	jobs := append([]Clip(nil), clips...)

	for _, h := range []handler{
		r.HandleOrphans,
		r.HandleAlreadyLinked,
		r.HandleOffline,
		r.HandleExistingUnlinked,
	} {
		var err error
		if jobs, err = h(ctx, st, jobs); err != nil {
			return r.plan(st, OutcomeNothingToQueue, nil), err
		}
	}
	jobs = r.AssignOutputs(jobs)
	jobs, err := r.HandleCollisions(ctx, st, jobs)
	if err != nil {
		return r.plan(st, OutcomeNothingToQueue, nil), err
	}
	outcome, err := r.HandleFinalQueuable(ctx, st, jobs)
	if err != nil {
		return r.plan(st, outcome, nil), err
	}
	if outcome != OutcomeQueue {
		jobs = nil
	}
	return r.plan(st, outcome, jobs), nil
}

func (r *Reconciler) plan(st *RunState, outcome Outcome, jobs []Clip) Plan {
	return Plan{
		Outcome: outcome,
		Jobs:    jobs,
		Linked:  st.Linked,
		Skipped: st.Skipped,
		Moved:   st.Moved,
		Dropped: st.Dropped,
	}
}
