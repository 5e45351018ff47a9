package restore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"restore-manager/core/reconcile"
	"restore-manager/core/snapshot"

	"go.uber.org/zap"
)

var (
	// ErrNoSession is returned when a session operation runs without a session.
	ErrNoSession = errors.New("no active restore session")
	// ErrSessionBusy is returned when a session is executing.
	ErrSessionBusy = errors.New("restore session is executing")
	// ErrFetchFailed wraps cloud transport failures while starting a session.
	ErrFetchFailed = errors.New("failed to fetch cloud snapshot")
)

// CloudSource is the cloud side of the restore flow.
type CloudSource interface {
	List(ctx context.Context) ([]snapshot.FileInfo, error)
	Upload(ctx context.Context, snap reconcile.Snapshot) (snapshot.FileInfo, error)
	Prune(ctx context.Context, keep int) ([]string, error)
}

// SessionView is the JSON view of the active session.
type SessionView struct {
	ID            string                            `json:"id"`
	Source        string                            `json:"source"`
	CreatedAt     time.Time                         `json:"createdAt"`
	Step          reconcile.Step                    `json:"step"`
	Strategy      reconcile.Strategy                `json:"strategy"`
	Flags         map[reconcile.CollectionName]bool `json:"flags"`
	Diff          *reconcile.DiffResult             `json:"diff"`
	ConflictCount int                               `json:"conflictCount"`
	Resolutions   map[string]reconcile.Choice       `json:"resolutions,omitempty"`
	Preview       *reconcile.MergeResult            `json:"preview,omitempty"`
	Result        *reconcile.ApplyResult            `json:"result,omitempty"`
}

// ConflictView is one conflict with its effective choice and a text preview.
type ConflictView struct {
	reconcile.Conflict
	Key      string                   `json:"key"`
	Choice   reconcile.Choice         `json:"choice"`
	Position int                      `json:"position"`
	Total    int                      `json:"total"`
	Preview  []reconcile.PreviewChunk `json:"preview"`
}

// CloudBackupResult reports an upload of local data to the cloud.
type CloudBackupResult struct {
	File   snapshot.FileInfo `json:"file"`
	Pruned []string          `json:"pruned,omitempty"`
}

// Service owns the single restore session.
type Service struct {
	source         CloudSource
	fetcher        snapshot.Fetcher
	store          reconcile.Store
	applier        *reconcile.Applier
	logger         *zap.Logger
	cloudRetention int

	mu      sync.Mutex
	session *reconcile.Session
}

// NewService creates a restore service. fetcher is usually a snapshot.Cache in
// front of the source.
func NewService(source CloudSource, fetcher snapshot.Fetcher, store reconcile.Store, applier *reconcile.Applier, cloudRetention int, logger *zap.Logger) *Service {
	return &Service{
		source:         source,
		fetcher:        fetcher,
		store:          store,
		applier:        applier,
		logger:         logger,
		cloudRetention: cloudRetention,
	}
}

func (s *Service) view() *SessionView {
	sess := s.session
	v := &SessionView{
		ID:            sess.ID,
		Source:        sess.Source,
		CreatedAt:     sess.CreatedAt,
		Step:          sess.Step(),
		Strategy:      sess.Strategy(),
		Flags:         sess.Flags(),
		Diff:          sess.Diff,
		ConflictCount: sess.Diff.ConflictCount(),
		Preview:       sess.Preview(),
		Result:        sess.Result(),
	}
	if r, err := sess.Resolver(); err == nil {
		v.Resolutions = r.Resolutions()
	}
	return v
}

func (s *Service) active() (*reconcile.Session, error) {
	if s.session == nil || !s.session.Active() {
		return nil, ErrNoSession
	}
	return s.session, nil
}

// ListSnapshots lists cloud snapshot files, newest first.
func (s *Service) ListSnapshots(ctx context.Context) ([]snapshot.FileInfo, error) {
	return s.source.List(ctx)
}

// StartSession fetches a cloud snapshot, diffs it against local data and makes
// it the active session. A failed fetch leaves the previous session untouched.
func (s *Service) StartSession(ctx context.Context, objectPath string) (*SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil && s.session.Step() == reconcile.StepExecuting {
		return nil, ErrSessionBusy
	}

	cloud, err := s.fetcher.Fetch(ctx, objectPath)
	if err != nil {
		if errors.Is(err, reconcile.ErrInvalidSnapshot) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	local, err := reconcile.LoadSnapshot(ctx, s.store)
	if err != nil {
		return nil, fmt.Errorf("load local data: %w", err)
	}

	sess, err := reconcile.NewSession(objectPath, local, cloud)
	if err != nil {
		return nil, err
	}
	if s.session != nil && s.session.Active() {
		_ = s.session.Abandon()
		s.logger.Info("Replaced restore session", zap.String("previous", s.session.ID))
	}
	s.session = sess
	s.logger.Info("Restore session started",
		zap.String("session", sess.ID),
		zap.String("source", objectPath),
		zap.Int("conflicts", sess.Diff.ConflictCount()))
	return s.view(), nil
}

// Session returns the active session.
func (s *Service) Session() (*SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ErrNoSession
	}
	return s.view(), nil
}

// AbandonSession drops the active session without side effects.
func (s *Service) AbandonSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.active()
	if err != nil {
		return err
	}
	if err := sess.Abandon(); err != nil {
		return err
	}
	s.logger.Info("Restore session abandoned", zap.String("session", sess.ID))
	s.session = nil
	return nil
}

// SelectStrategy records the strategy.
func (s *Service) SelectStrategy(strategy reconcile.Strategy) (*SessionView, error) {
	return s.mutate(func(sess *reconcile.Session) error {
		return sess.SelectStrategy(strategy)
	})
}

// SelectContent records which collections are restored.
func (s *Service) SelectContent(flags map[reconcile.CollectionName]bool) (*SessionView, error) {
	return s.mutate(func(sess *reconcile.Session) error {
		return sess.SelectContent(flags)
	})
}

// Back returns to the previous wizard step.
func (s *Service) Back() (*SessionView, error) {
	return s.mutate(func(sess *reconcile.Session) error {
		return sess.Back()
	})
}

func (s *Service) mutate(fn func(*reconcile.Session) error) (*SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.active()
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	return s.view(), nil
}

func (s *Service) resolver() (*reconcile.Resolver, error) {
	sess, err := s.active()
	if err != nil {
		return nil, err
	}
	return sess.Resolver()
}

// Conflict returns one conflict with its preview. id is a collection:id key or
// a unique record id.
func (s *Service) Conflict(id string) (*ConflictView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.resolver()
	if err != nil {
		return nil, err
	}
	return conflictView(r, id)
}

func conflictView(r *reconcile.Resolver, id string) (*ConflictView, error) {
	c, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	choice, err := r.Resolution(c.Key())
	if err != nil {
		return nil, err
	}
	pos := 0
	for i, other := range r.Conflicts() {
		if other.Key() == c.Key() {
			pos = i
			break
		}
	}
	return &ConflictView{
		Conflict: c,
		Key:      c.Key(),
		Choice:   choice,
		Position: pos,
		Total:    r.Len(),
		Preview:  reconcile.Preview(c),
	}, nil
}

// ResolveConflict records a choice for one conflict.
func (s *Service) ResolveConflict(id string, choice reconcile.Choice) (*ConflictView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.resolver()
	if err != nil {
		return nil, err
	}
	if err := r.SetResolution(id, choice); err != nil {
		return nil, err
	}
	return conflictView(r, id)
}

// ResolveConflicts records several choices, or one choice for all conflicts
// when all is set.
func (s *Service) ResolveConflicts(choices map[string]reconcile.Choice, all reconcile.Choice) (map[string]reconcile.Choice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.resolver()
	if err != nil {
		return nil, err
	}
	if all != "" {
		if err := r.SetAllTo(all); err != nil {
			return nil, err
		}
	}
	if len(choices) > 0 {
		if err := r.SetBatch(choices); err != nil {
			return nil, err
		}
	}
	return r.Resolutions(), nil
}

// CurrentConflict returns the conflict under the navigation cursor with its
// staged or recorded choice.
func (s *Service) CurrentConflict() (*ConflictView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.resolver()
	if err != nil {
		return nil, err
	}
	return currentView(r)
}

// SelectCurrent stages a choice for the conflict under the cursor. The choice
// is recorded when the cursor moves.
func (s *Service) SelectCurrent(choice reconcile.Choice) (*ConflictView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.resolver()
	if err != nil {
		return nil, err
	}
	if err := r.Select(choice); err != nil {
		return nil, err
	}
	return currentView(r)
}

// NextConflict records the staged choice and moves the cursor forward. moved
// is false on the last conflict.
func (s *Service) NextConflict() (view *ConflictView, moved bool, err error) {
	return s.move((*reconcile.Resolver).Next)
}

// PreviousConflict records the staged choice and moves the cursor back. moved
// is false on the first conflict.
func (s *Service) PreviousConflict() (view *ConflictView, moved bool, err error) {
	return s.move((*reconcile.Resolver).Previous)
}

func (s *Service) move(step func(*reconcile.Resolver) bool) (*ConflictView, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.resolver()
	if err != nil {
		return nil, false, err
	}
	moved := step(r)
	view, err := currentView(r)
	return view, moved, err
}

func currentView(r *reconcile.Resolver) (*ConflictView, error) {
	c, choice, ok := r.Current()
	if !ok {
		return nil, fmt.Errorf("%w: session has no conflicts", reconcile.ErrUnknownConflict)
	}
	return &ConflictView{
		Conflict: c,
		Key:      c.Key(),
		Choice:   choice,
		Position: r.Position(),
		Total:    r.Len(),
		Preview:  reconcile.Preview(c),
	}, nil
}

// PrepareMerge computes the merge preview and moves to confirmation.
func (s *Service) PrepareMerge() (*reconcile.MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.active()
	if err != nil {
		return nil, err
	}
	return sess.Prepare()
}

// Apply executes the confirmed merge against the local store.
func (s *Service) Apply(ctx context.Context) (*reconcile.ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.active()
	if err != nil {
		return nil, err
	}

	merge, opts, err := sess.Begin()
	if err != nil {
		return nil, err
	}
	res, applyErr := s.applier.Apply(ctx, merge, opts.RestoreFlags)
	if err := sess.Finish(res); err != nil {
		s.logger.Error("Failed to finish restore session", zap.Error(err))
	}
	if applyErr != nil {
		s.logger.Error("Restore apply failed",
			zap.String("session", sess.ID),
			zap.String("state", string(res.State)),
			zap.Error(applyErr))
		return res, applyErr
	}
	s.logger.Info("Restore applied",
		zap.String("session", sess.ID),
		zap.String("strategy", string(opts.Strategy)),
		zap.String("backup", res.BackupKey),
		zap.Int("discarded", merge.TotalDiscarded()))
	return res, nil
}

// Rollback restores the latest local backup.
func (s *Service) Rollback(ctx context.Context) (*reconcile.RollbackResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil && s.session.Step() == reconcile.StepExecuting {
		return nil, ErrSessionBusy
	}
	return s.applier.Rollback(ctx)
}

// Backups lists local backups, newest first.
func (s *Service) Backups(ctx context.Context) ([]reconcile.BackupInfo, error) {
	return s.applier.Backups(ctx)
}

// BackupToCloud uploads the local data as a new cloud snapshot and prunes old
// snapshots beyond the configured retention.
func (s *Service) BackupToCloud(ctx context.Context) (*CloudBackupResult, error) {
	local, err := reconcile.LoadSnapshot(ctx, s.store)
	if err != nil {
		return nil, fmt.Errorf("load local data: %w", err)
	}
	file, err := s.source.Upload(ctx, local)
	if err != nil {
		return nil, err
	}
	res := &CloudBackupResult{File: file}
	pruned, err := s.source.Prune(ctx, s.cloudRetention)
	res.Pruned = pruned
	if err != nil {
		s.logger.Warn("Cloud snapshot pruning failed", zap.Error(err))
	}
	return res, nil
}
