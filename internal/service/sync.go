package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bizsync/internal/config"
	"bizsync/internal/conflict"
	"bizsync/internal/domain"
)

// ProgressFunc receives the result of every category as soon as it is done.
type ProgressFunc func(domain.SyncResult)

// SyncService drives push-then-pull synchronization passes for the owner of
// the current session.
type SyncService struct {
	store       RecordStore
	tracker     DirtyTracker
	checkpoints CheckpointStore
	remote      RemoteClient
	sessions    SessionProvider
	txManager   TransactionManager
	publisher   Publisher
	logger      *slog.Logger
	config      config.SyncConfig

	mu       sync.Mutex
	inFlight map[string]struct{}
	last     *domain.SyncReport
	progress ProgressFunc
}

func NewSyncService(
	store RecordStore,
	tracker DirtyTracker,
	checkpoints CheckpointStore,
	remote RemoteClient,
	sessions SessionProvider,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		store:       store,
		tracker:     tracker,
		checkpoints: checkpoints,
		remote:      remote,
		sessions:    sessions,
		txManager:   txManager,
		publisher:   publisher,
		logger:      logger.With("component", "sync"),
		config:      cfg,
		inFlight:    make(map[string]struct{}),
	}
}

func (s *SyncService) OnProgress(fn ProgressFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = fn
}

// PerformSync runs one pass over scope, a single category or
// domain.CategoryAll. Per-category failures are reported in the returned
// report; the error is non-nil only when the pass could not start, the
// session expired, or the pass was cancelled.
func (s *SyncService) PerformSync(ctx context.Context, scope domain.Category) (*domain.SyncReport, error) {
	categories, err := categoriesFor(scope)
	if err != nil {
		return nil, err
	}

	session, err := s.resolveSession(ctx)
	if err != nil {
		return nil, err
	}

	if !s.acquire(session.OwnerID) {
		return nil, domain.ErrSyncInProgress
	}
	defer s.release(session.OwnerID)

	logger := s.logger.With("owner_id", session.OwnerID)
	report := &domain.SyncReport{
		OwnerID:   session.OwnerID,
		StartedAt: time.Now(),
	}

	logger.Info("starting sync", "scope", scope, "categories", len(categories))

	var fatal error
	for _, category := range categories {
		var result domain.SyncResult
		if ctx.Err() != nil {
			result = domain.SyncResult{Category: category, Failure: domain.ErrCancelled}
		} else {
			result = s.syncCategory(ctx, logger, session.OwnerID, category)
		}

		report.Results = append(report.Results, result)
		s.notify(result)

		if isFatal(result.Failure) {
			fatal = result.Failure
			logger.Warn("sync aborted, re-authentication required", "category", category, "error", fatal)
			break
		}
	}

	report.FinishedAt = time.Now()
	s.setLast(report)
	s.publish(ctx, logger, report)

	totals := report.Totals()
	logger.Info("sync completed",
		"pushed", totals.Pushed,
		"pulled", totals.Pulled,
		"conflicts_remote", totals.ConflictsResolvedByRemote,
		"conflicts_local", totals.ConflictsResolvedByLocal,
		"failed", len(report.Failed()),
		"duration", report.Duration(),
	)

	if fatal != nil {
		return report, fatal
	}
	for _, res := range report.Results {
		if errors.Is(res.Failure, domain.ErrCancelled) {
			return report, domain.ErrCancelled
		}
	}
	return report, nil
}

func (s *SyncService) syncCategory(ctx context.Context, logger *slog.Logger, ownerID string, category domain.Category) domain.SyncResult {
	logger = logger.With("category", category)
	result := domain.SyncResult{Category: category}

	fail := func(step string, err error) domain.SyncResult {
		result.Failure = fmt.Errorf("%s %s: %w", step, category, err)
		logger.Warn("category sync failed", "step", step, "error", err)
		return result
	}

	dirty, err := s.tracker.ListDirty(ctx, category, ownerID)
	if err != nil {
		return fail("collect dirty", s.localFailure(ctx, err))
	}

	if len(dirty) > 0 {
		pushed, rejected, err := s.push(ctx, logger, ownerID, category, dirty)
		result.Pushed = pushed
		result.Rejected = rejected
		if err != nil {
			return fail("push", err)
		}
	}

	if ctx.Err() != nil {
		return fail("pull", domain.ErrCancelled)
	}

	since, err := s.checkpoints.Get(ctx, ownerID, category)
	if err != nil {
		return fail("read checkpoint", s.localFailure(ctx, err))
	}
	result.Checkpoint = since

	batch, err := s.pull(ctx, logger, ownerID, category, since)
	if err != nil {
		return fail(batch.step, err)
	}

	if ctx.Err() != nil {
		return fail("merge", domain.ErrCancelled)
	}

	if batch.empty() {
		logger.Debug("nothing to merge", "checkpoint", since)
		return result
	}

	merged, err := s.merge(ctx, ownerID, category, since, batch)
	if err != nil {
		return fail("merge", s.localFailure(ctx, err))
	}

	result.Pulled = len(batch.records) + len(batch.backfill)
	result.ConflictsResolvedByRemote = merged.byRemote
	result.ConflictsResolvedByLocal = merged.byLocal
	result.Skipped = merged.skipped
	result.Checkpoint = merged.checkpoint

	logger.Info("category synced",
		"pushed", result.Pushed,
		"rejected", result.Rejected,
		"pulled", result.Pulled,
		"conflicts_remote", result.ConflictsResolvedByRemote,
		"conflicts_local", result.ConflictsResolvedByLocal,
		"checkpoint", result.Checkpoint,
	)
	return result
}

// push sends the dirty snapshot and clears dirty on exactly the accepted
// records that were not edited again while the request was in flight.
func (s *SyncService) push(ctx context.Context, logger *slog.Logger, ownerID string, category domain.Category, dirty []domain.Entity) (int, int, error) {
	ack, err := s.remote.Push(ctx, category, ownerID, dirty)
	if err != nil {
		return 0, 0, s.remoteFailure(ctx, err)
	}

	// a push confirmed after cancellation is cleared by the next idempotent push
	if ctx.Err() != nil {
		return 0, 0, domain.ErrCancelled
	}

	marks := acceptedMarks(dirty, ack.Accepted)
	rejected := len(dirty) - len(marks)
	if len(ack.Rejected) > 0 {
		logger.Warn("server rejected records", "count", len(ack.Rejected), "rejected", ack.Rejected)
	}
	if len(marks) == 0 {
		return 0, rejected, nil
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		cleared, err := s.tracker.ClearDirty(txCtx, category, marks)
		if err != nil {
			return err
		}
		if int(cleared) < len(marks) {
			logger.Debug("records edited during push stay dirty", "count", len(marks)-int(cleared))
		}
		return nil
	})
	if err != nil {
		return 0, rejected, fmt.Errorf("clear dirty: %w", s.localFailure(ctx, err))
	}

	return len(marks), rejected, nil
}

// pullBatch is what one category pull brought back. backfill holds the
// full history of newly linked suppliers and never moves the category
// checkpoint.
type pullBatch struct {
	records  []domain.Entity
	backfill []domain.Entity
	covered  []string
	step     string
}

func (b pullBatch) empty() bool {
	return len(b.records) == 0 && len(b.backfill) == 0 && len(b.covered) == 0
}

func (s *SyncService) pull(ctx context.Context, logger *slog.Logger, ownerID string, category domain.Category, since int64) (pullBatch, error) {
	req := domain.PullRequest{Category: category, OwnerID: ownerID, Since: since}
	if category != domain.CategoryLinkedOffering {
		records, err := s.remote.Pull(ctx, req)
		if err != nil {
			return pullBatch{step: "pull"}, s.remoteFailure(ctx, err)
		}
		return pullBatch{records: records}, nil
	}

	current, added, err := s.linkedSuppliers(ctx, ownerID)
	if err != nil {
		return pullBatch{step: "list suppliers"}, s.localFailure(ctx, err)
	}
	batch := pullBatch{covered: added}

	// before the first checkpoint a single full pull covers everyone
	if since == 0 {
		current = append(current, added...)
		added = nil
	}

	if len(current) > 0 {
		req.SupplierIDs = current
		if batch.records, err = s.remote.Pull(ctx, req); err != nil {
			return pullBatch{step: "pull"}, s.remoteFailure(ctx, err)
		}
	}

	if len(added) > 0 {
		logger.Info("pulling offerings of newly linked suppliers", "suppliers", added)
		req.SupplierIDs = added
		req.Since = 0
		if batch.backfill, err = s.remote.Pull(ctx, req); err != nil {
			return pullBatch{step: "backfill"}, s.remoteFailure(ctx, err)
		}
	}

	if len(current) == 0 && len(added) == 0 {
		logger.Debug("no linked suppliers, nothing to pull")
	}
	return batch, nil
}

// linkedSuppliers splits the owner's linked suppliers into those already
// pulled in full and those linked since.
func (s *SyncService) linkedSuppliers(ctx context.Context, ownerID string) ([]string, []string, error) {
	suppliers, err := s.store.Query(ctx, domain.CategorySuppliers, domain.Query{OwnerID: ownerID})
	if err != nil {
		return nil, nil, err
	}

	var current, added []string
	for _, e := range suppliers {
		sup, ok := e.(*domain.Supplier)
		if !ok || !sup.Linked {
			continue
		}
		ts, err := s.checkpoints.Get(ctx, ownerID, domain.LinkedSupplierCheckpoint(sup.ID))
		if err != nil {
			return nil, nil, err
		}
		if ts > 0 {
			current = append(current, sup.ID)
		} else {
			added = append(added, sup.ID)
		}
	}
	return current, added, nil
}

type mergeOutcome struct {
	byRemote   int
	byLocal    int
	skipped    int
	checkpoint int64
}

// merge applies pulled records and advances the checkpoint in one
// transaction, so a failure leaves neither behind.
func (s *SyncService) merge(ctx context.Context, ownerID string, category domain.Category, since int64, batch pullBatch) (mergeOutcome, error) {
	var out mergeOutcome

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		out = mergeOutcome{checkpoint: since}

		for _, incoming := range batch.records {
			if err := s.apply(txCtx, ownerID, category, incoming, &out); err != nil {
				return err
			}
			if ts := incoming.GetMeta().UpdatedAt; ts > out.checkpoint {
				out.checkpoint = ts
			}
		}
		for _, incoming := range batch.backfill {
			if err := s.apply(txCtx, ownerID, category, incoming, &out); err != nil {
				return err
			}
		}

		if out.checkpoint > since {
			if _, err := s.checkpoints.Set(txCtx, ownerID, category, out.checkpoint); err != nil {
				return fmt.Errorf("advance checkpoint: %w", err)
			}
		}

		coveredAt := time.Now().UnixMilli()
		for _, id := range batch.covered {
			if _, err := s.checkpoints.Set(txCtx, ownerID, domain.LinkedSupplierCheckpoint(id), coveredAt); err != nil {
				return fmt.Errorf("mark supplier %s: %w", id, err)
			}
		}
		return nil
	})

	return out, err
}

func (s *SyncService) apply(ctx context.Context, ownerID string, category domain.Category, incoming domain.Entity, out *mergeOutcome) error {
	meta := incoming.GetMeta()
	meta.OwnerID = ownerID

	var local domain.Entity
	existing, err := s.store.Get(ctx, category, meta.ID)
	switch {
	case err == nil:
		local = existing
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("get %s: %w", meta.ID, err)
	}

	// rows left by another owner are replaced unless they hold unpushed edits
	if local != nil && local.GetMeta().OwnerID != ownerID {
		if local.GetMeta().Dirty {
			out.skipped++
			return nil
		}
		local = nil
	}

	decision := conflict.Resolve(local, incoming)
	switch decision {
	case conflict.RemoteWins:
		out.byRemote++
	case conflict.LocalWins:
		out.byLocal++
	case conflict.Skip:
		out.skipped++
	}

	if decision.Applies() {
		meta.Dirty = false
		if err := s.store.Upsert(ctx, category, incoming); err != nil {
			return fmt.Errorf("upsert %s: %w", meta.ID, err)
		}
	}
	return nil
}

// Status reports the checkpoints of the current owner and the last pass.
func (s *SyncService) Status(ctx context.Context) (*domain.SyncStatus, error) {
	session, err := s.resolveSession(ctx)
	if err != nil {
		return nil, err
	}

	checkpoints, err := s.checkpoints.List(ctx, session.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	// per-supplier markers are bookkeeping, not categories
	for c := range checkpoints {
		if !c.Valid() {
			delete(checkpoints, c)
		}
	}

	status := &domain.SyncStatus{
		OwnerID:     session.OwnerID,
		Checkpoints: checkpoints,
		Running:     s.running(session.OwnerID),
	}
	if last := s.lastReport(); last != nil && last.OwnerID == session.OwnerID {
		status.LastReport = last
	}
	return status, nil
}

// Reset clears the checkpoints of scope so the next pass pulls everything.
func (s *SyncService) Reset(ctx context.Context, scope domain.Category) error {
	categories, err := categoriesFor(scope)
	if err != nil {
		return err
	}

	session, err := s.resolveSession(ctx)
	if err != nil {
		return err
	}

	if scope == domain.CategoryAll {
		categories = nil
	}
	if err := s.checkpoints.Clear(ctx, session.OwnerID, categories...); err != nil {
		return fmt.Errorf("clear checkpoints: %w", err)
	}

	s.logger.Info("checkpoints reset", "owner_id", session.OwnerID, "scope", scope)
	return nil
}

func (s *SyncService) running(ownerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inFlight[ownerID]
	return busy
}

func (s *SyncService) lastReport() *domain.SyncReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *SyncService) resolveSession(ctx context.Context) (*domain.Session, error) {
	session, err := s.sessions.Session(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrAuthRequired) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthRequired, err)
	}
	if session == nil || session.OwnerID == "" || session.Token == "" {
		return nil, domain.ErrAuthRequired
	}
	return session, nil
}

func (s *SyncService) acquire(ownerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[ownerID]; busy {
		return false
	}
	s.inFlight[ownerID] = struct{}{}
	return true
}

func (s *SyncService) release(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, ownerID)
}

func (s *SyncService) setLast(report *domain.SyncReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = report
}

func (s *SyncService) notify(result domain.SyncResult) {
	s.mu.Lock()
	fn := s.progress
	s.mu.Unlock()
	if fn != nil {
		fn(result)
	}
}

func (s *SyncService) publish(ctx context.Context, logger *slog.Logger, report *domain.SyncReport) {
	if s.publisher == nil {
		return
	}

	pubCtx := context.WithoutCancel(ctx)
	if s.config.PublishTimeout > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(pubCtx, s.config.PublishTimeout)
		defer cancel()
	}

	if err := s.publisher.PublishReport(pubCtx, report); err != nil {
		logger.Error("failed to publish sync report", "error", err)
	}
}

func (s *SyncService) remoteFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", domain.ErrCancelled, err)
	}
	return err
}

func (s *SyncService) localFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", domain.ErrCancelled, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrLocalStore, err)
}

func isFatal(err error) bool {
	return errors.Is(err, domain.ErrSessionExpired) || errors.Is(err, domain.ErrAuthRequired)
}

func categoriesFor(scope domain.Category) ([]domain.Category, error) {
	if scope == domain.CategoryAll || scope == "" {
		return domain.AllCategories(), nil
	}
	if !scope.Valid() {
		return nil, fmt.Errorf("unknown category %q", scope)
	}
	return []domain.Category{scope}, nil
}

func acceptedMarks(pushed []domain.Entity, accepted []string) []domain.DirtyMark {
	ok := make(map[string]struct{}, len(accepted))
	for _, id := range accepted {
		ok[id] = struct{}{}
	}

	kept := make([]domain.Entity, 0, len(accepted))
	for _, e := range pushed {
		if _, found := ok[e.GetMeta().ID]; found {
			kept = append(kept, e)
		}
	}
	return domain.MarksOf(kept)
}
