package reconcile

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Step is a restore wizard step.
type Step string

const (
	StepStrategy     Step = "strategy_selection"
	StepContent      Step = "content_selection"
	StepConfirmation Step = "confirmation"
	StepExecuting    Step = "executing"
	StepFinished     Step = "finished"
	StepAbandoned    Step = "abandoned"
)

// Session carries one restore from diff to apply. It is not safe for
// concurrent use.
type Session struct {
	ID        string
	Source    string
	CreatedAt time.Time

	Local Snapshot
	Cloud Snapshot
	Diff  *DiffResult

	step     Step
	strategy Strategy
	flags    map[CollectionName]bool
	resolver *Resolver
	preview  *MergeResult
	result   *ApplyResult
}

// NewSession diffs local against cloud and starts the wizard at strategy selection.
func NewSession(source string, local, cloud Snapshot) (*Session, error) {
	diff, err := Diff(local, cloud)
	if err != nil {
		return nil, err
	}
	flags := make(map[CollectionName]bool, len(Collections))
	for _, name := range Collections {
		flags[name] = true
	}
	return &Session{
		ID:        uuid.NewString(),
		Source:    source,
		CreatedAt: time.Now().UTC(),
		Local:     local,
		Cloud:     cloud,
		Diff:      diff,
		step:      StepStrategy,
		strategy:  StrategySmart,
		flags:     flags,
		resolver:  NewResolver(diff.Conflicts()),
	}, nil
}

func (s *Session) transitionError(action string) error {
	return fmt.Errorf("%w: cannot %s during %s", ErrInvalidTransition, action, s.step)
}

// Step returns the current wizard step.
func (s *Session) Step() Step {
	return s.step
}

// Strategy returns the selected strategy.
func (s *Session) Strategy() Strategy {
	return s.strategy
}

// Flags returns a copy of the restore flags.
func (s *Session) Flags() map[CollectionName]bool {
	out := make(map[CollectionName]bool, len(s.flags))
	for k, v := range s.flags {
		out[k] = v
	}
	return out
}

// Preview returns the last merge computed by Prepare, if any.
func (s *Session) Preview() *MergeResult {
	return s.preview
}

// Result returns the apply result once the session finished.
func (s *Session) Result() *ApplyResult {
	return s.result
}

// Resolver returns the conflict resolver. It is discarded once execution starts.
func (s *Session) Resolver() (*Resolver, error) {
	if s.resolver == nil {
		return nil, s.transitionError("resolve conflicts")
	}
	return s.resolver, nil
}

// SelectStrategy records the strategy and moves to content selection.
func (s *Session) SelectStrategy(strategy Strategy) error {
	if s.step != StepStrategy {
		return s.transitionError("select strategy")
	}
	if !strategy.IsValid() {
		return &InputError{Reason: fmt.Sprintf("unknown strategy %q", strategy), Err: ErrInvalidOptions}
	}
	s.strategy = strategy
	s.step = StepContent
	return nil
}

// SelectContent replaces the restore flags. Collections missing from flags are
// not restored. At least one collection must be selected.
func (s *Session) SelectContent(flags map[CollectionName]bool) error {
	if s.step != StepContent {
		return s.transitionError("select content")
	}
	next := make(map[CollectionName]bool, len(Collections))
	selected := 0
	for name, on := range flags {
		if !name.IsValid() {
			return &InputError{Reason: fmt.Sprintf("unknown collection %q", name), Err: ErrInvalidOptions}
		}
		next[name] = on
		if on {
			selected++
		}
	}
	if selected == 0 {
		return &InputError{Reason: "no collection selected", Err: ErrInvalidOptions}
	}
	s.flags = next
	return nil
}

// Options builds the merge options from the wizard state.
func (s *Session) Options() MergeOptions {
	opts := MergeOptions{Strategy: s.strategy, RestoreFlags: s.Flags()}
	if s.strategy == StrategyManual && s.resolver != nil {
		opts.CustomConflictResolutions = s.resolver.Resolutions()
	}
	return opts
}

// Prepare computes the merge for review and moves to confirmation. Calling it
// again during confirmation recomputes the preview.
func (s *Session) Prepare() (*MergeResult, error) {
	if s.step != StepContent && s.step != StepConfirmation {
		return nil, s.transitionError("prepare merge")
	}
	result := Merge(s.Local, s.Cloud, s.Diff, s.Options())
	if !result.Success {
		return result, &InputError{Reason: result.Error, Err: ErrInvalidOptions}
	}
	s.preview = result
	s.step = StepConfirmation
	return result, nil
}

// Begin freezes the options, discards the resolver and moves to executing.
// The returned merge is what must be applied.
func (s *Session) Begin() (*MergeResult, MergeOptions, error) {
	if s.step != StepConfirmation {
		return nil, MergeOptions{}, s.transitionError("execute")
	}
	opts := s.Options()
	result := Merge(s.Local, s.Cloud, s.Diff, opts)
	if !result.Success {
		return result, opts, &InputError{Reason: result.Error, Err: ErrInvalidOptions}
	}
	s.preview = result
	s.resolver = nil
	s.step = StepExecuting
	return result, opts, nil
}

// Finish records the apply outcome and ends the session.
func (s *Session) Finish(result *ApplyResult) error {
	if s.step != StepExecuting {
		return s.transitionError("finish")
	}
	s.result = result
	s.step = StepFinished
	return nil
}

// Back returns to the previous step.
func (s *Session) Back() error {
	switch s.step {
	case StepConfirmation:
		s.step = StepContent
	case StepContent:
		s.step = StepStrategy
	default:
		return s.transitionError("go back")
	}
	return nil
}

// Abandon ends the session without side effects. It fails once execution started.
func (s *Session) Abandon() error {
	switch s.step {
	case StepExecuting, StepFinished, StepAbandoned:
		return s.transitionError("abandon")
	}
	s.step = StepAbandoned
	s.resolver = nil
	return nil
}

// Active reports whether the session still accepts wizard operations.
func (s *Session) Active() bool {
	return s.step != StepFinished && s.step != StepAbandoned
}
