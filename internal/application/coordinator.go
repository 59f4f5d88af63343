package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
	"github.com/wms-platform/cfs-destuffing-service/pkg/logging"
	"github.com/wms-platform/cfs-destuffing-service/pkg/metrics"
	"github.com/wms-platform/cfs-destuffing-service/pkg/tracing"
)

// Config tunes the coordinator
type Config struct {
	// CacheTTL bounds how long a reconciled view is served without a refetch
	CacheTTL time.Duration
	// CallTimeout bounds every collaborator call
	CallTimeout time.Duration
	// PrefetchConcurrency bounds concurrent container loads in LoadPlan
	PrefetchConcurrency int
}

// DefaultConfig returns the coordinator defaults
func DefaultConfig() Config {
	return Config{
		CacheTTL:            30 * time.Second,
		CallTimeout:         10 * time.Second,
		PrefetchConcurrency: 4,
	}
}

// Dependencies are the collaborators the coordinator orchestrates.
// Journal and Notifier are optional.
type Dependencies struct {
	Backend     domain.CFSBackend
	Inspection  domain.InspectionService
	Permissions domain.PermissionChecker
	Journal     domain.ExecutionJournal
	Notifier    domain.PlanCompletionNotifier
}

// DestuffingCoordinator owns the container view cache and runs every
// destuffing workflow operation against it.
type DestuffingCoordinator struct {
	deps    Dependencies
	cfg     Config
	cache   *viewCache
	flights *flightMarkers
	logger  *logging.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

// NewDestuffingCoordinator creates a new DestuffingCoordinator
func NewDestuffingCoordinator(deps Dependencies, cfg Config, logger *logging.Logger, m *metrics.Metrics) *DestuffingCoordinator {
	if cfg.PrefetchConcurrency <= 0 {
		cfg.PrefetchConcurrency = DefaultConfig().PrefetchConcurrency
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	clock := func() time.Time { return time.Now().UTC() }
	return &DestuffingCoordinator{
		deps:    deps,
		cfg:     cfg,
		cache:   newViewCache(clock),
		flights: newFlightMarkers(),
		logger:  logger.WithComponent("destuffing-coordinator"),
		metrics: m,
		clock:   clock,
	}
}

const (
	serviceCFS        = "cfs-backend"
	serviceInspection = "inspection-service"
)

func keyOf(ref ContainerRef) containerKey {
	return containerKey{planID: ref.PlanID, containerID: ref.ContainerID}
}

func spanAttrs(ref ContainerRef, extra ...attribute.KeyValue) []attribute.KeyValue {
	return append([]attribute.KeyValue{
		attribute.String("plan.id", ref.PlanID),
		attribute.String("container.id", ref.ContainerID),
	}, extra...)
}

// Subscribe registers an observer for one container. The returned func unregisters it.
func (s *DestuffingCoordinator) Subscribe(ref ContainerRef, fn Observer) func() {
	return s.cache.subscribe(keyOf(ref), fn)
}

// LoadPlan fetches a plan and prefetches every container it owns
func (s *DestuffingCoordinator) LoadPlan(ctx context.Context, planID string) (view *PlanView, err error) {
	ctx, span := tracing.StartSpan(ctx, "destuffing.load_plan", attribute.String("plan.id", planID))
	defer func() { tracing.EndSpan(span, err) }()

	var plan *domain.Plan
	err = s.call(ctx, serviceCFS, "fetch-plan", func(ctx context.Context) error {
		var ferr error
		plan, ferr = s.deps.Backend.FetchPlan(ctx, planID)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlanNotFound, planID)
	}

	containers := make([]*ContainerView, len(plan.ContainerIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PrefetchConcurrency)
	for i, containerID := range plan.ContainerIDs {
		g.Go(func() error {
			v, lerr := s.LoadContainer(gctx, ContainerRef{PlanID: plan.ID, ContainerID: containerID})
			if lerr != nil {
				return fmt.Errorf("container %s: %w", containerID, lerr)
			}
			containers[i] = v
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	return &PlanView{Plan: *plan, Containers: containers}, nil
}

// GetContainer serves the cached view, refetching when it is missing or stale
func (s *DestuffingCoordinator) GetContainer(ctx context.Context, ref ContainerRef) (*ContainerView, error) {
	entry, err := s.entryFor(ctx, keyOf(ref))
	if err != nil {
		return nil, err
	}
	return s.viewOf(ctx, keyOf(ref), entry), nil
}

// LoadContainer refetches the container from the collaborator and reconciles
// the cached view with it
func (s *DestuffingCoordinator) LoadContainer(ctx context.Context, ref ContainerRef) (view *ContainerView, err error) {
	ctx, span := tracing.StartSpan(ctx, "destuffing.load_container", spanAttrs(ref)...)
	defer func() { tracing.EndSpan(span, err) }()

	entry, err := s.load(ctx, keyOf(ref))
	if err != nil {
		return nil, err
	}
	return s.viewOf(ctx, keyOf(ref), entry), nil
}

// ResealPrompt returns the reseal prompt state of a container
func (s *DestuffingCoordinator) ResealPrompt(ref ContainerRef) ResealPrompt {
	prompt, _ := s.cache.state(keyOf(ref))
	return prompt
}

// DismissResealPrompt closes an open reseal prompt without resealing
func (s *DestuffingCoordinator) DismissResealPrompt(ref ContainerRef) ResealPrompt {
	key := keyOf(ref)
	s.cache.updateState(key, func(st *containerState) bool {
		if !st.prompt.Open {
			return false
		}
		st.prompt.Open = false
		return true
	})
	prompt, _ := s.cache.state(key)
	return prompt
}

// Unseal moves a waiting container to in-progress once the collaborator confirms
func (s *DestuffingCoordinator) Unseal(ctx context.Context, cmd UnsealCommand) (view *ContainerView, err error) {
	ctx, span := tracing.StartSpan(ctx, "destuffing.unseal", spanAttrs(cmd.ContainerRef)...)
	defer func() {
		s.metrics.RecordDestuffOperation("unseal", outcomeFor(err))
		tracing.EndSpan(span, err)
	}()

	if !s.deps.Permissions.CanWrite(ctx) {
		return nil, domain.ErrPermissionDenied
	}

	key := keyOf(cmd.ContainerRef)
	entry, err := s.entryFor(ctx, key)
	if err != nil {
		return nil, err
	}
	if err = entry.container.CheckUnseal(); err != nil {
		return nil, err
	}

	err = s.call(ctx, serviceCFS, "unseal", func(ctx context.Context) error {
		return s.deps.Backend.UnsealContainer(ctx, cmd.PlanID, cmd.ContainerID)
	})
	if err != nil {
		return nil, err
	}

	entry, err = s.confirm(ctx, key, entry.generation, NotifyWorkingStatus, "", func(e *cacheEntry) bool {
		return e.container.ConfirmUnseal() == nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, key, entry, &domain.ContainerUnsealedEvent{
		PlanID:      cmd.PlanID,
		ContainerID: cmd.ContainerID,
		SealNumber:  entry.container.SealNumber,
		UnsealedAt:  s.clock(),
	})
	s.logger.Audit(ctx, "unseal", "container", cmd.ContainerID, map[string]any{"planId": cmd.PlanID})

	return s.viewOf(ctx, key, entry), nil
}

// Reseal records a new seal on the container. It closes the reseal prompt
// and refreshes the view. The container is not completed by a reseal.
func (s *DestuffingCoordinator) Reseal(ctx context.Context, cmd ResealCommand) (view *ContainerView, err error) {
	ctx, span := tracing.StartSpan(ctx, "destuffing.reseal", spanAttrs(cmd.ContainerRef)...)
	defer func() {
		s.metrics.RecordDestuffOperation("reseal", outcomeFor(err))
		tracing.EndSpan(span, err)
	}()

	if !s.deps.Permissions.CanWrite(ctx) {
		return nil, domain.ErrPermissionDenied
	}

	key := keyOf(cmd.ContainerRef)
	req := cmd.ResealRequest
	if err = req.Validate(); err != nil {
		return nil, err
	}
	entry, err := s.entryFor(ctx, key)
	if err != nil {
		return nil, err
	}
	if err = entry.container.CheckReseal(&req); err != nil {
		return nil, err
	}

	err = s.call(ctx, serviceCFS, "reseal", func(ctx context.Context) error {
		return s.deps.Backend.ResealContainer(ctx, cmd.PlanID, cmd.ContainerID, req)
	})
	if err != nil {
		return nil, err
	}

	now := s.clock()
	record := domain.ResealRecord{
		NewSealNumber: req.NewSealNumber,
		OnHoldFlag:    req.OnHoldFlag,
		Note:          req.Note,
		ResealedAt:    now,
	}
	entry, err = s.patch(ctx, key, entry.generation, NotifyWorkingStatus, "", func(e *cacheEntry) bool {
		before := e.container
		if _, cerr := e.container.ConfirmReseal(req, now); cerr != nil {
			e.container.NewSealNumber = req.NewSealNumber
		}
		return before.NewSealNumber != e.container.NewSealNumber || before.WorkingStatus != e.container.WorkingStatus
	})
	if err != nil {
		return nil, err
	}

	s.cache.updateState(key, func(st *containerState) bool {
		st.prompt = ResealPrompt{Open: false, LastSealNumber: req.NewSealNumber}
		st.history = append(st.history, record)
		return true
	})

	s.record(ctx, key, entry, &domain.ContainerResealedEvent{
		PlanID:        cmd.PlanID,
		ContainerID:   cmd.ContainerID,
		NewSealNumber: req.NewSealNumber,
		OnHoldFlag:    req.OnHoldFlag,
		Note:          req.Note,
		ResealedAt:    now,
	})
	s.logger.Audit(ctx, "reseal", "container", cmd.ContainerID, map[string]any{
		"planId":        cmd.PlanID,
		"newSealNumber": req.NewSealNumber,
		"onHold":        req.OnHoldFlag,
	})

	if refreshed, rerr := s.load(ctx, key); rerr != nil {
		s.logger.WithContext(ctx).WithError(rerr).Warn("Refetch after reseal failed, keeping local state",
			"planId", cmd.PlanID, "containerId", cmd.ContainerID)
	} else {
		entry = refreshed
	}

	return s.viewOf(ctx, key, entry), nil
}

// StartDestuff begins the destuff operation of one hbl and resolves its
// inspection session. The hbl is patched to in-progress locally; a later
// refetch advances it to done or on-hold.
func (s *DestuffingCoordinator) StartDestuff(ctx context.Context, cmd StartDestuffCommand) (result *StartDestuffResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "destuffing.start_destuff", spanAttrs(cmd.ContainerRef, attribute.String("hbl.id", cmd.HblID))...)
	defer func() {
		s.metrics.RecordDestuffOperation("start-destuff", outcomeFor(err))
		tracing.EndSpan(span, err)
	}()

	if !s.deps.Permissions.CanWrite(ctx) {
		return nil, domain.ErrPermissionDenied
	}

	key := keyOf(cmd.ContainerRef)
	release, ok := s.flights.acquire(flightOf(key, cmd.HblID))
	if !ok {
		return nil, fmt.Errorf("%w: hbl %s", domain.ErrOperationInFlight, cmd.HblID)
	}
	defer release()

	entry, err := s.entryFor(ctx, key)
	if err != nil {
		return nil, err
	}
	row, err := startableHbl(entry, cmd.HblID)
	if err != nil {
		return nil, err
	}
	base := entry.generation

	// Manual destuff always runs with storage bypass off
	const targetBypass = false
	if row.BypassStorage() != targetBypass {
		err = s.call(ctx, serviceCFS, "update-bypass-flag", func(ctx context.Context) error {
			return s.deps.Backend.UpdateHblBypassFlag(ctx, cmd.HblID, targetBypass)
		})
		if err != nil {
			return nil, err
		}
		if refreshed, rerr := s.load(ctx, key); rerr != nil {
			s.logger.WithContext(ctx).WithError(rerr).Warn("Refetch after bypass flag update failed",
				"planId", cmd.PlanID, "containerId", cmd.ContainerID, "hblId", cmd.HblID)
		} else {
			if row, err = startableHbl(refreshed, cmd.HblID); err != nil {
				return nil, err
			}
			base = refreshed.generation
		}
	}

	result = &StartDestuffResult{
		HblID:               row.HblID,
		PackingListID:       row.PackingListID,
		PackingListNo:       row.PackingListNo,
		InspectionSessionID: row.InspectionSessionID,
	}
	if result.InspectionSessionID == "" {
		var sessionID string
		serr := s.call(ctx, serviceInspection, "get-or-create-inspection-session", func(ctx context.Context) error {
			var ierr error
			sessionID, ierr = s.deps.Inspection.GetOrCreateInspectionSession(ctx, row.PackingListID, domain.FlowInbound)
			return ierr
		})
		if serr != nil {
			s.logger.WithContext(ctx).WithError(serr).Warn("Inspection session unavailable, continuing without one",
				"planId", cmd.PlanID, "containerId", cmd.ContainerID, "hblId", cmd.HblID, "packingListId", row.PackingListID)
			s.metrics.RecordSessionDegraded()
			result.SessionDegraded = true
			result.Warnings = append(result.Warnings, "inspection session could not be resolved: "+serr.Error())
		} else {
			result.InspectionSessionID = sessionID
		}
	}

	entry, err = s.patch(ctx, key, base, NotifyHblStatus, cmd.HblID, func(e *cacheEntry) bool {
		i := domain.FindHbl(e.hbls, cmd.HblID)
		if i < 0 || e.hbls[i].DestuffStatus.IsFinished() {
			return false
		}
		before := e.hbls[i].Clone()
		h := &e.hbls[i]
		h.DestuffStatus = domain.DestuffStatusInProgress
		h.BypassStorageFlag = domain.BoolPtr(targetBypass)
		if result.InspectionSessionID != "" {
			h.InspectionSessionID = result.InspectionSessionID
		}
		return !before.Equal(*h)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, key, entry, &domain.HblDestuffStartedEvent{
		PlanID:              cmd.PlanID,
		ContainerID:         cmd.ContainerID,
		HblID:               cmd.HblID,
		PackingListID:       result.PackingListID,
		InspectionSessionID: result.InspectionSessionID,
		SessionDegraded:     result.SessionDegraded,
		StartedAt:           s.clock(),
	})
	s.logger.Audit(ctx, "start-destuff", "hbl", cmd.HblID, map[string]any{
		"planId":          cmd.PlanID,
		"containerId":     cmd.ContainerID,
		"sessionDegraded": result.SessionDegraded,
	})

	release()
	result.View = s.viewOf(ctx, key, entry)
	return result, nil
}

func startableHbl(entry *cacheEntry, hblID string) (domain.HblDestuffStatus, error) {
	i := domain.FindHbl(entry.hbls, hblID)
	if i < 0 {
		return domain.HblDestuffStatus{}, fmt.Errorf("%w: %s", domain.ErrHblNotFound, hblID)
	}
	row := entry.hbls[i]
	if !row.HasPackingList() {
		return row, fmt.Errorf("%w: %s", domain.ErrMissingPackingList, hblID)
	}
	if row.DestuffStatus.IsFinished() {
		return row, fmt.Errorf("%w: %s is %s", domain.ErrHblAlreadyFinished, hblID, row.DestuffStatus)
	}
	return row, nil
}

// RecordResult attaches a destuff result to an hbl. When the hbl is already
// done the recording is metadata-only. The destuff status is never changed
// locally by a result.
func (s *DestuffingCoordinator) RecordResult(ctx context.Context, cmd RecordResultCommand) (outcome *RecordResultOutcome, err error) {
	ctx, span := tracing.StartSpan(ctx, "destuffing.record_result", spanAttrs(cmd.ContainerRef, attribute.String("hbl.id", cmd.HblID))...)
	defer func() {
		s.metrics.RecordDestuffOperation("record-result", outcomeFor(err))
		tracing.EndSpan(span, err)
	}()

	if !s.deps.Permissions.CanWrite(ctx) {
		return nil, domain.ErrPermissionDenied
	}

	key := keyOf(cmd.ContainerRef)
	release, ok := s.flights.acquire(flightOf(key, cmd.HblID))
	if !ok {
		return nil, fmt.Errorf("%w: hbl %s", domain.ErrOperationInFlight, cmd.HblID)
	}
	defer release()

	entry, err := s.entryFor(ctx, key)
	if err != nil {
		return nil, err
	}
	i := domain.FindHbl(entry.hbls, cmd.HblID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrHblNotFound, cmd.HblID)
	}
	metadataOnly := entry.hbls[i].DestuffStatus == domain.DestuffStatusDone

	payload := domain.DestuffResultPayload{DestuffResult: cmd.Result, MetadataOnly: metadataOnly}
	err = s.call(ctx, serviceCFS, "record-destuff-result", func(ctx context.Context) error {
		return s.deps.Backend.RecordDestuffResult(ctx, cmd.PlanID, cmd.ContainerID, cmd.HblID, payload)
	})
	if err != nil {
		return nil, err
	}

	entry, err = s.confirm(ctx, key, entry.generation, NotifyHblStatus, cmd.HblID, func(e *cacheEntry) bool {
		j := domain.FindHbl(e.hbls, cmd.HblID)
		if j < 0 {
			return false
		}
		if e.hbls[j].DestuffResult != nil && *e.hbls[j].DestuffResult == cmd.Result {
			return false
		}
		res := cmd.Result
		e.hbls[j].DestuffResult = &res
		return true
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, key, entry, &domain.HblResultRecordedEvent{
		PlanID:       cmd.PlanID,
		ContainerID:  cmd.ContainerID,
		HblID:        cmd.HblID,
		Result:       cmd.Result,
		MetadataOnly: metadataOnly,
		RecordedAt:   s.clock(),
	})
	s.logger.Audit(ctx, "record-result", "hbl", cmd.HblID, map[string]any{
		"planId":       cmd.PlanID,
		"containerId":  cmd.ContainerID,
		"metadataOnly": metadataOnly,
		"onHold":       cmd.Result.OnHold,
	})

	release()
	return &RecordResultOutcome{HblID: cmd.HblID, MetadataOnly: metadataOnly, View: s.viewOf(ctx, key, entry)}, nil
}

// Complete runs the completion gate against the cached view and asks the
// collaborator to close the container. A reseal requirement from the
// collaborator opens the reseal prompt and is reported as an outcome.
func (s *DestuffingCoordinator) Complete(ctx context.Context, cmd CompleteCommand) (result *CompletionResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "destuffing.complete", spanAttrs(cmd.ContainerRef)...)
	defer func() {
		outcome := outcomeFor(err)
		if err == nil {
			outcome = string(result.Outcome)
		}
		s.metrics.RecordDestuffOperation("complete", outcome)
		tracing.EndSpan(span, err)
	}()

	canWrite := s.deps.Permissions.CanWrite(ctx)
	if !canWrite {
		return nil, domain.ErrPermissionDenied
	}

	key := keyOf(cmd.ContainerRef)
	entry, err := s.entryFor(ctx, key)
	if err != nil {
		return nil, err
	}
	if err = domain.CheckCompletion(canWrite, entry.container, entry.hbls); err != nil {
		return nil, err
	}

	err = s.call(ctx, serviceCFS, "complete", func(ctx context.Context) error {
		return s.deps.Backend.CompleteContainer(ctx, cmd.PlanID, cmd.ContainerID)
	})
	if errors.Is(err, domain.ErrNeedsReseal) {
		return s.routeToReseal(ctx, key, entry, err), nil
	}
	if err != nil {
		return nil, err
	}

	now := s.clock()
	entry, err = s.confirm(ctx, key, entry.generation, NotifyWorkingStatus, "", func(e *cacheEntry) bool {
		return e.container.ConfirmCompleted(now) == nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, key, entry, &domain.ContainerCompletedEvent{
		PlanID:      cmd.PlanID,
		ContainerID: cmd.ContainerID,
		HblCount:    len(entry.hbls),
		CompletedAt: now,
	})
	s.logger.Audit(ctx, "complete", "container", cmd.ContainerID, map[string]any{"planId": cmd.PlanID})

	if s.deps.Notifier != nil {
		if nerr := s.deps.Notifier.NotifyContainerCompleted(ctx, cmd.PlanID, cmd.ContainerID, now); nerr != nil {
			s.logger.WithContext(ctx).WithError(nerr).Warn("Failed to notify plan execution workflow",
				"planId", cmd.PlanID, "containerId", cmd.ContainerID)
		}
	}

	return &CompletionResult{Outcome: OutcomeCompleted, View: s.viewOf(ctx, key, entry)}, nil
}

func (s *DestuffingCoordinator) routeToReseal(ctx context.Context, key containerKey, entry *cacheEntry, cause error) *CompletionResult {
	now := s.clock()
	s.cache.updateState(key, func(st *containerState) bool {
		if st.prompt.Open {
			return false
		}
		st.prompt = ResealPrompt{
			Open:           true,
			Reason:         cause.Error(),
			OpenedAt:       &now,
			LastSealNumber: entry.container.SealReference(),
		}
		return true
	})
	s.metrics.RecordResealRequired()

	s.record(ctx, key, entry, &domain.ResealRequiredEvent{
		PlanID:      key.planID,
		ContainerID: key.containerID,
		SealNumber:  entry.container.SealReference(),
		Reason:      cause.Error(),
		DetectedAt:  now,
	})
	s.logger.WithContext(ctx).Info("Completion requires reseal",
		"planId", key.planID, "containerId", key.containerID, "reason", cause.Error())

	prompt, _ := s.cache.state(key)
	return &CompletionResult{
		Outcome:      OutcomeResealRequired,
		ResealPrompt: &prompt,
		View:         s.viewOf(ctx, key, entry),
	}
}

// entryFor returns the cached entry, loading it when missing or stale. A
// failed refetch of a stale entry falls back to the stale entry.
func (s *DestuffingCoordinator) entryFor(ctx context.Context, key containerKey) (*cacheEntry, error) {
	entry, fresh := s.cache.lookup(key, s.cfg.CacheTTL)
	if entry != nil && fresh {
		return entry, nil
	}
	loaded, err := s.load(ctx, key)
	if err != nil {
		if entry != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Serving stale container view",
				"planId", key.planID, "containerId", key.containerID)
			return entry, nil
		}
		return nil, err
	}
	return loaded, nil
}

func (s *DestuffingCoordinator) load(ctx context.Context, key containerKey) (*cacheEntry, error) {
	snap, err := s.fetchSnapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	entry, changed := s.cache.reconcile(key, snap)
	s.metrics.RecordCacheReconcile(changed)
	return entry, nil
}

func (s *DestuffingCoordinator) fetchSnapshot(ctx context.Context, key containerKey) (ContainerSnapshot, error) {
	var record *domain.ContainerRecord
	err := s.call(ctx, serviceCFS, "fetch-plan-container", func(ctx context.Context) error {
		var ferr error
		record, ferr = s.deps.Backend.FetchPlanContainer(ctx, key.planID, key.containerID)
		return ferr
	})
	if err != nil {
		return ContainerSnapshot{}, err
	}
	if record == nil {
		return ContainerSnapshot{}, fmt.Errorf("%w: %s/%s", domain.ErrContainerNotFound, key.planID, key.containerID)
	}

	container := record.Container
	container.PlanID = key.planID
	container.ContainerID = key.containerID
	baseline := domain.BuildBaseline(record.Manifest)

	var live []domain.HblDestuffStatus
	if len(baseline) > 0 {
		err = s.call(ctx, serviceCFS, "fetch-hbl-statuses", func(ctx context.Context) error {
			var ferr error
			live, ferr = s.deps.Backend.FetchHblStatuses(ctx, key.planID, key.containerID, domain.HblIDs(baseline))
			return ferr
		})
		if err != nil {
			return ContainerSnapshot{}, err
		}
	}

	return ContainerSnapshot{Container: container, Baseline: baseline, Live: live}, nil
}

// patch applies an optimistic change to the entry of generation base. A
// reconcile that landed while the collaborator call was in flight wins, and
// the fresher entry is returned unpatched. A missing entry is refetched, and
// the refetched entry is not patched either.
func (s *DestuffingCoordinator) patch(ctx context.Context, key containerKey, base uint64, kind NotificationKind, hblID string, fn func(e *cacheEntry) bool) (*cacheEntry, error) {
	entry, applied := s.cache.patch(key, base, kind, hblID, fn)
	if entry == nil {
		return s.load(ctx, key)
	}
	if !applied && entry.generation != base {
		s.logger.WithContext(ctx).Debug("Optimistic patch superseded by refetch",
			"planId", key.planID, "containerId", key.containerID, "hblId", hblID)
	}
	return entry, nil
}

// confirm applies a transition the collaborator has already accepted. When a
// refetch replaced the entry while the call was in flight, that snapshot may
// predate the write, so the container is refetched again. If the refetch
// fails the transition is applied to the current entry instead.
func (s *DestuffingCoordinator) confirm(ctx context.Context, key containerKey, base uint64, kind NotificationKind, hblID string, fn func(e *cacheEntry) bool) (*cacheEntry, error) {
	entry, applied := s.cache.patch(key, base, kind, hblID, fn)
	if entry == nil {
		return s.load(ctx, key)
	}
	if applied || entry.generation == base {
		return entry, nil
	}

	refreshed, err := s.load(ctx, key)
	if err == nil {
		return refreshed, nil
	}
	s.logger.WithContext(ctx).WithError(err).Warn("Refetch after superseded write failed, applying confirmed transition",
		"planId", key.planID, "containerId", key.containerID, "hblId", hblID)
	if patched, _ := s.cache.patch(key, entry.generation, kind, hblID, fn); patched != nil {
		return patched, nil
	}
	return entry, nil
}

// call bounds fn with the collaborator timeout and classifies a deadline as a timeout
func (s *DestuffingCoordinator) call(ctx context.Context, service, operation string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrCollaboratorTimeout) {
		err = fmt.Errorf("%w: %s: %w", domain.ErrCollaboratorTimeout, operation, err)
	}
	if err != nil && !errors.Is(err, domain.ErrNeedsReseal) {
		s.logger.CollaboratorCall(ctx, service, operation, time.Since(start), err)
	}
	return err
}

func (s *DestuffingCoordinator) record(ctx context.Context, key containerKey, entry *cacheEntry, events ...domain.DomainEvent) {
	if s.deps.Journal == nil {
		return
	}
	_, history := s.cache.state(key)
	err := s.deps.Journal.Append(ctx, domain.JournalEntry{
		Container:     entry.container,
		Hbls:          entry.hbls,
		ResealHistory: history,
		Events:        events,
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to journal destuffing events",
			"planId", key.planID, "containerId", key.containerID)
	}
}

func (s *DestuffingCoordinator) viewOf(ctx context.Context, key containerKey, entry *cacheEntry) *ContainerView {
	prompt, history := s.cache.state(key)
	gate := domain.CheckCompletion(s.deps.Permissions.CanWrite(ctx), entry.container, entry.hbls)

	view := &ContainerView{
		Container:     entry.container,
		Hbls:          entry.hbls,
		CanDischarge:  entry.container.CanDischarge(),
		CanStore:      entry.container.CanStore(),
		CanComplete:   gate == nil,
		Version:       entry.version,
		Provisional:   entry.provisional,
		FetchedAt:     entry.fetchedAt,
		ResealPrompt:  prompt,
		ResealHistory: history,
	}
	if gate != nil {
		view.Blocker = gate.Error()
	}
	if view.Hbls == nil {
		view.Hbls = []domain.HblDestuffStatus{}
	}
	for _, h := range entry.hbls {
		if s.flights.busy(flightOf(key, h.HblID)) {
			view.Processing = append(view.Processing, h.HblID)
		}
	}
	return view
}
