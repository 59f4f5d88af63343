package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
	"github.com/wms-platform/cfs-destuffing-service/pkg/logging"
)

const testPlanID = "PLAN-1"

var refC1 = ContainerRef{PlanID: testPlanID, ContainerID: "C1"}

type harness struct {
	coordinator *DestuffingCoordinator
	backend     *fakeBackend
	inspection  *fakeInspection
	journal     *recordingJournal
	notifier    *recordingNotifier
}

func newHarness(t *testing.T, canWrite bool) *harness {
	t.Helper()

	h := &harness{
		backend:    newFakeBackend(),
		inspection: &fakeInspection{},
		journal:    &recordingJournal{},
		notifier:   &recordingNotifier{},
	}
	cfg := DefaultConfig()
	cfg.CacheTTL = time.Minute
	cfg.CallTimeout = 2 * time.Second
	h.coordinator = NewDestuffingCoordinator(Dependencies{
		Backend:     h.backend,
		Inspection:  h.inspection,
		Permissions: staticPermissions(canWrite),
		Journal:     h.journal,
		Notifier:    h.notifier,
	}, cfg, logging.NewNop(), nil)
	return h
}

// withC1 seeds container C1 with hbls H1 and H2, both waiting with packing lists
func (h *harness) withC1(status domain.WorkingStatus) *harness {
	h.backend.addContainer("C1", status,
		domain.RawHblRecord{HblID: "H1", HblCode: "HBL-0001"},
		domain.RawHblRecord{ID: "H2", Code: "HBL-0002"},
	)
	h.backend.setLive("C1",
		domain.HblDestuffStatus{HblID: "H1", PackingListID: "PL-1", PackingListNo: "PL-0001", DestuffStatus: domain.DestuffStatusWaiting},
		domain.HblDestuffStatus{HblID: "H2", PackingListID: "PL-2", PackingListNo: "PL-0002", DestuffStatus: domain.DestuffStatusWaiting},
	)
	return h
}

func (h *harness) load(t *testing.T) *ContainerView {
	t.Helper()
	view, err := h.coordinator.LoadContainer(context.Background(), refC1)
	require.NoError(t, err)
	return view
}

func statusOf(t *testing.T, view *ContainerView, hblID string) domain.DestuffStatus {
	t.Helper()
	row, ok := view.Hbl(hblID)
	require.True(t, ok, "hbl %s missing from view", hblID)
	return row.DestuffStatus
}

func TestDestuffingCoordinator_HappyPathScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true).withC1(domain.WorkingStatusWaiting)

	view := h.load(t)
	require.Len(t, view.Hbls, 2)
	assert.Equal(t, "HBL-0002", view.Hbls[1].HblCode)
	assert.False(t, view.CanComplete)

	view, err := h.coordinator.Unseal(ctx, UnsealCommand{ContainerRef: refC1})
	require.NoError(t, err)
	assert.Equal(t, domain.WorkingStatusInProgress, view.Container.WorkingStatus)

	started, err := h.coordinator.StartDestuff(ctx, StartDestuffCommand{ContainerRef: refC1, HblID: "H1"})
	require.NoError(t, err)
	assert.Equal(t, "SESSION-PL-1", started.InspectionSessionID)
	assert.Equal(t, "PL-1", started.PackingListID)
	assert.False(t, started.SessionDegraded)
	assert.Equal(t, domain.DestuffStatusInProgress, statusOf(t, started.View, "H1"))
	assert.True(t, started.View.Provisional)
	assert.Equal(t, 0, h.backend.count("bypass"), "flag already matches the target")

	h.backend.setLive("C1",
		domain.HblDestuffStatus{HblID: "H1", PackingListID: "PL-1", DestuffStatus: domain.DestuffStatusDone},
		domain.HblDestuffStatus{HblID: "H2", PackingListID: "PL-2"},
	)
	view = h.load(t)
	assert.Equal(t, domain.DestuffStatusDone, statusOf(t, view, "H1"))
	assert.Equal(t, domain.DestuffStatusWaiting, statusOf(t, view, "H2"))
	assert.False(t, view.Provisional)
	assert.True(t, view.CanComplete)

	result, err := h.coordinator.Complete(ctx, CompleteCommand{ContainerRef: refC1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, domain.WorkingStatusDone, result.View.Container.WorkingStatus)
	assert.Equal(t, domain.CargoEmpty, result.View.Container.CargoLoadedStatus)
	assert.NotNil(t, result.View.Container.CompletedAt)
	assert.Equal(t, []string{"C1"}, h.notifier.completed)

	assert.Equal(t, []string{
		domain.EventContainerUnsealed,
		domain.EventHblDestuffStarted,
		domain.EventContainerCompleted,
	}, h.journal.eventTypes())
}

func TestDestuffingCoordinator_ConflictRoutesToReseal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
	h.backend.setLive("C1",
		domain.HblDestuffStatus{HblID: "H1", PackingListID: "PL-1", DestuffStatus: domain.DestuffStatusDone},
		domain.HblDestuffStatus{HblID: "H2", PackingListID: "PL-2"},
	)
	h.backend.completeErr = fmt.Errorf("%w: seal mismatch", domain.ErrNeedsReseal)
	h.load(t)

	var mu sync.Mutex
	prompts := 0
	unsubscribe := h.coordinator.Subscribe(refC1, func(n Notification) {
		if n.Kind == NotifyResealPrompt {
			mu.Lock()
			prompts++
			mu.Unlock()
		}
	})
	defer unsubscribe()

	result, err := h.coordinator.Complete(ctx, CompleteCommand{ContainerRef: refC1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeResealRequired, result.Outcome)
	require.NotNil(t, result.ResealPrompt)
	assert.True(t, result.ResealPrompt.Open)
	assert.Equal(t, "SEAL-001", result.ResealPrompt.LastSealNumber)
	assert.Equal(t, domain.WorkingStatusInProgress, result.View.Container.WorkingStatus)
	assert.True(t, h.coordinator.ResealPrompt(refC1).Open)

	// A repeated conflict while the prompt is open does not reopen it
	_, err = h.coordinator.Complete(ctx, CompleteCommand{ContainerRef: refC1})
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, 1, prompts)
	mu.Unlock()
	assert.Empty(t, h.notifier.completed)

	view, err := h.coordinator.Reseal(ctx, ResealCommand{
		ContainerRef:  refC1,
		ResealRequest: domain.ResealRequest{NewSealNumber: " SEAL-999 ", Note: "seal broken at door"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SEAL-999", view.Container.SealReference())
	assert.False(t, view.ResealPrompt.Open)
	assert.Equal(t, "SEAL-999", view.ResealPrompt.LastSealNumber)
	assert.Equal(t, domain.WorkingStatusInProgress, view.Container.WorkingStatus)
	require.Len(t, view.ResealHistory, 1)
	assert.Equal(t, "seal broken at door", view.ResealHistory[0].Note)
	require.Len(t, h.backend.reseals, 1)
	assert.Equal(t, "SEAL-999", h.backend.reseals[0].NewSealNumber)

	assert.Contains(t, h.journal.eventTypes(), domain.EventResealRequired)
	assert.Contains(t, h.journal.eventTypes(), domain.EventContainerResealed)
}

func TestDestuffingCoordinator_CompleteGate(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(h *harness)
		reason error
	}{
		{
			name: "hbl in progress blocks completion",
			setup: func(h *harness) {
				h.backend.setLive("C1",
					domain.HblDestuffStatus{HblID: "H1", DestuffStatus: domain.DestuffStatusDone},
					domain.HblDestuffStatus{HblID: "H2", DestuffStatus: domain.DestuffStatusInProgress},
				)
			},
			reason: domain.ErrHblInProgress,
		},
		{
			name: "empty cargo cannot complete again",
			setup: func(h *harness) {
				h.backend.setLive("C1", domain.HblDestuffStatus{HblID: "H1", DestuffStatus: domain.DestuffStatusDone})
				h.backend.mutate("C1", func(c *domain.PlanContainer) { c.CargoLoadedStatus = domain.CargoEmpty })
			},
			reason: domain.ErrContainerAlreadyEmpty,
		},
		{
			name:   "all waiting cannot complete",
			setup:  func(h *harness) {},
			reason: domain.ErrNoFinishedHbl,
		},
		{
			name: "container without hbls",
			setup: func(h *harness) {
				h.backend.addContainer("C1", domain.WorkingStatusInProgress)
				h.backend.setLive("C1")
			},
			reason: domain.ErrNoHbls,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
			tt.setup(h)
			h.load(t)
			fetches := h.backend.count("fetch-container")

			result, err := h.coordinator.Complete(context.Background(), CompleteCommand{ContainerRef: refC1})
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.reason)
			assert.True(t, domain.IsPrecondition(err))
			assert.Equal(t, 0, h.backend.count("complete"))
			assert.Equal(t, fetches, h.backend.count("fetch-container"))
		})
	}
}

func TestDestuffingCoordinator_CompleteUpstreamErrorLeavesState(t *testing.T) {
	h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
	h.backend.setLive("C1", domain.HblDestuffStatus{HblID: "H1", DestuffStatus: domain.DestuffStatusOnHold})
	h.backend.completeErr = &domain.CollaboratorError{Service: "cfs-backend", StatusCode: 503, Err: domain.ErrCollaboratorUnavailable}
	before := h.load(t)

	result, err := h.coordinator.Complete(context.Background(), CompleteCommand{ContainerRef: refC1})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrCollaboratorUnavailable)

	after, err := h.coordinator.GetContainer(context.Background(), refC1)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, domain.WorkingStatusInProgress, after.Container.WorkingStatus)
	assert.False(t, after.ResealPrompt.Open)
}

func TestDestuffingCoordinator_PermissionDeniedBeforeAnyCall(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false).withC1(domain.WorkingStatusWaiting)
	c := h.coordinator

	_, err := c.Unseal(ctx, UnsealCommand{ContainerRef: refC1})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = c.Reseal(ctx, ResealCommand{ContainerRef: refC1, ResealRequest: domain.ResealRequest{NewSealNumber: "SEAL-2"}})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = c.StartDestuff(ctx, StartDestuffCommand{ContainerRef: refC1, HblID: "H1"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = c.RecordResult(ctx, RecordResultCommand{ContainerRef: refC1, HblID: "H1"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = c.Complete(ctx, CompleteCommand{ContainerRef: refC1})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	assert.Equal(t, 0, h.backend.mutations())
	assert.Equal(t, 0, h.backend.count("fetch-container"))
	assert.Equal(t, 0, h.inspection.count())
}

func TestDestuffingCoordinator_Unseal(t *testing.T) {
	t.Run("already unsealed is rejected locally", func(t *testing.T) {
		h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
		_, err := h.coordinator.Unseal(context.Background(), UnsealCommand{ContainerRef: refC1})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.Equal(t, 0, h.backend.count("unseal"))
	})

	t.Run("upstream failure leaves state unchanged", func(t *testing.T) {
		h := newHarness(t, true).withC1(domain.WorkingStatusWaiting)
		before := h.load(t)
		h.backend.unsealErr = domain.ErrCollaboratorRejected

		_, err := h.coordinator.Unseal(context.Background(), UnsealCommand{ContainerRef: refC1})
		assert.ErrorIs(t, err, domain.ErrCollaboratorRejected)

		after, err := h.coordinator.GetContainer(context.Background(), refC1)
		require.NoError(t, err)
		assert.Equal(t, domain.WorkingStatusWaiting, after.Container.WorkingStatus)
		assert.Equal(t, before.Version, after.Version)
	})
}

func TestDestuffingCoordinator_ResealRequiresSeal(t *testing.T) {
	h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
	_, err := h.coordinator.Reseal(context.Background(), ResealCommand{
		ContainerRef:  refC1,
		ResealRequest: domain.ResealRequest{NewSealNumber: "   "},
	})
	assert.ErrorIs(t, err, domain.ErrSealNumberRequired)
	assert.Equal(t, 0, h.backend.count("reseal"))
}

func TestDestuffingCoordinator_DismissResealPrompt(t *testing.T) {
	h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
	h.backend.setLive("C1", domain.HblDestuffStatus{HblID: "H1", DestuffStatus: domain.DestuffStatusDone})
	h.backend.completeErr = domain.ErrNeedsReseal
	h.load(t)

	_, err := h.coordinator.Complete(context.Background(), CompleteCommand{ContainerRef: refC1})
	require.NoError(t, err)
	require.True(t, h.coordinator.ResealPrompt(refC1).Open)

	prompt := h.coordinator.DismissResealPrompt(refC1)
	assert.False(t, prompt.Open)
	assert.False(t, h.coordinator.ResealPrompt(refC1).Open)
}

func TestDestuffingCoordinator_StartDestuffSingleFlight(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
	h.inspection.gate = make(chan struct{})
	h.inspection.entered = make(chan struct{}, 1)
	h.load(t)

	type outcome struct {
		result *StartDestuffResult
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := h.coordinator.StartDestuff(ctx, StartDestuffCommand{ContainerRef: refC1, HblID: "H1"})
		first <- outcome{res, err}
	}()
	<-h.inspection.entered

	view, err := h.coordinator.GetContainer(ctx, refC1)
	require.NoError(t, err)
	assert.Equal(t, []string{"H1"}, view.Processing)

	_, err = h.coordinator.StartDestuff(ctx, StartDestuffCommand{ContainerRef: refC1, HblID: "H1"})
	assert.ErrorIs(t, err, domain.ErrOperationInFlight)
	_, err = h.coordinator.RecordResult(ctx, RecordResultCommand{ContainerRef: refC1, HblID: "H1"})
	assert.ErrorIs(t, err, domain.ErrOperationInFlight)

	close(h.inspection.gate)
	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, domain.DestuffStatusInProgress, statusOf(t, got.result.View, "H1"))
	assert.Empty(t, got.result.View.Processing)
	assert.Equal(t, 1, h.inspection.count())
	assert.Equal(t, 0, h.backend.count("record"))
}

func TestDestuffingCoordinator_StartDestuffGuards(t *testing.T) {
	tests := []struct {
		name  string
		hblID string
		live  []domain.HblDestuffStatus
		want  error
	}{
		{
			name:  "missing packing list",
			hblID: "H1",
			live:  []domain.HblDestuffStatus{{HblID: "H1"}},
			want:  domain.ErrMissingPackingList,
		},
		{
			name:  "done hbl cannot restart",
			hblID: "H1",
			live:  []domain.HblDestuffStatus{{HblID: "H1", PackingListID: "PL-1", DestuffStatus: domain.DestuffStatusDone}},
			want:  domain.ErrHblAlreadyFinished,
		},
		{
			name:  "on-hold hbl cannot restart",
			hblID: "H1",
			live:  []domain.HblDestuffStatus{{HblID: "H1", PackingListID: "PL-1", DestuffStatus: domain.DestuffStatusOnHold}},
			want:  domain.ErrHblAlreadyFinished,
		},
		{
			name:  "unknown hbl",
			hblID: "H9",
			want:  domain.ErrHblNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
			if tt.live != nil {
				h.backend.setLive("C1", tt.live...)
			}
			h.load(t)

			_, err := h.coordinator.StartDestuff(context.Background(), StartDestuffCommand{ContainerRef: refC1, HblID: tt.hblID})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, h.backend.mutations())
			assert.Equal(t, 0, h.inspection.count())
		})
	}
}

func TestDestuffingCoordinator_StartDestuffBypassFlag(t *testing.T) {
	ctx := context.Background()

	t.Run("flag is reset before the operation starts", func(t *testing.T) {
		h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
		h.backend.setLive("C1", domain.HblDestuffStatus{HblID: "H1", PackingListID: "PL-1", BypassStorageFlag: domain.BoolPtr(true)})
		h.load(t)
		fetches := h.backend.count("fetch-statuses")

		result, err := h.coordinator.StartDestuff(ctx, StartDestuffCommand{ContainerRef: refC1, HblID: "H1"})
		require.NoError(t, err)
		assert.Equal(t, 1, h.backend.count("bypass"))
		assert.Equal(t, fetches+1, h.backend.count("fetch-statuses"), "cache is refreshed after the flag write")

		row, _ := result.View.Hbl("H1")
		require.NotNil(t, row.BypassStorageFlag)
		assert.False(t, *row.BypassStorageFlag)
		assert.Equal(t, domain.DestuffStatusInProgress, row.DestuffStatus)
	})

	t.Run("flag write failure aborts without patch", func(t *testing.T) {
		h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
		h.backend.setLive("C1", domain.HblDestuffStatus{HblID: "H1", PackingListID: "PL-1", BypassStorageFlag: domain.BoolPtr(true)})
		h.backend.bypassErr = domain.ErrCollaboratorUnavailable
		before := h.load(t)

		_, err := h.coordinator.StartDestuff(ctx, StartDestuffCommand{ContainerRef: refC1, HblID: "H1"})
		assert.ErrorIs(t, err, domain.ErrCollaboratorUnavailable)
		assert.Equal(t, 0, h.inspection.count())

		after, err := h.coordinator.GetContainer(ctx, refC1)
		require.NoError(t, err)
		assert.Equal(t, before.Version, after.Version)
		assert.Equal(t, domain.DestuffStatusWaiting, statusOf(t, after, "H1"))

		// the marker is cleared after a failure
		h.backend.bypassErr = nil
		_, err = h.coordinator.StartDestuff(ctx, StartDestuffCommand{ContainerRef: refC1, HblID: "H1"})
		assert.NoError(t, err)
	})
}

func TestDestuffingCoordinator_StartDestuffSessions(t *testing.T) {
	ctx := context.Background()

	t.Run("existing session is reused", func(t *testing.T) {
		h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
		h.backend.setLive("C1", domain.HblDestuffStatus{HblID: "H1", PackingListID: "PL-1", InspectionSessionID: "SESSION-EXISTING"})
		h.load(t)

		result, err := h.coordinator.StartDestuff(ctx, StartDestuffCommand{ContainerRef: refC1, HblID: "H1"})
		require.NoError(t, err)
		assert.Equal(t, "SESSION-EXISTING", result.InspectionSessionID)
		assert.Equal(t, 0, h.inspection.count())
	})

	t.Run("session failure degrades but proceeds", func(t *testing.T) {
		h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
		h.inspection.err = errors.New("inspection service down")
		h.load(t)

		result, err := h.coordinator.StartDestuff(ctx, StartDestuffCommand{ContainerRef: refC1, HblID: "H1"})
		require.NoError(t, err)
		assert.True(t, result.SessionDegraded)
		assert.Len(t, result.Warnings, 1)
		assert.Empty(t, result.InspectionSessionID)
		assert.Equal(t, domain.DestuffStatusInProgress, statusOf(t, result.View, "H1"))
	})
}

func TestDestuffingCoordinator_RecordResult(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
	h.backend.setLive("C1",
		domain.HblDestuffStatus{HblID: "H1", PackingListID: "PL-1", DestuffStatus: domain.DestuffStatusDone},
		domain.HblDestuffStatus{HblID: "H2", PackingListID: "PL-2", DestuffStatus: domain.DestuffStatusWaiting},
	)
	h.load(t)

	result := domain.DestuffResult{Document: "doc-1", Image: "img-1", Note: "damaged carton"}
	outcome, err := h.coordinator.RecordResult(ctx, RecordResultCommand{ContainerRef: refC1, HblID: "H1", Result: result})
	require.NoError(t, err)
	assert.True(t, outcome.MetadataOnly)
	row, _ := outcome.View.Hbl("H1")
	assert.Equal(t, domain.DestuffStatusDone, row.DestuffStatus)
	require.NotNil(t, row.DestuffResult)
	assert.Equal(t, result, *row.DestuffResult)

	outcome, err = h.coordinator.RecordResult(ctx, RecordResultCommand{ContainerRef: refC1, HblID: "H2", Result: domain.DestuffResult{OnHold: true}})
	require.NoError(t, err)
	assert.False(t, outcome.MetadataOnly)
	assert.Equal(t, domain.DestuffStatusWaiting, statusOf(t, outcome.View, "H2"))

	require.Len(t, h.backend.results, 2)
	assert.True(t, h.backend.results[0].MetadataOnly)
	assert.False(t, h.backend.results[1].MetadataOnly)
}

func TestDestuffingCoordinator_RefetchReplacesOptimisticState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
	h.load(t)

	started, err := h.coordinator.StartDestuff(ctx, StartDestuffCommand{ContainerRef: refC1, HblID: "H1"})
	require.NoError(t, err)
	require.True(t, started.View.Provisional)

	// the server has not caught up yet, so its payload wins
	view := h.load(t)
	assert.False(t, view.Provisional)
	assert.Equal(t, domain.DestuffStatusWaiting, statusOf(t, view, "H1"))
	row, _ := view.Hbl("H1")
	assert.Empty(t, row.InspectionSessionID)
}

func TestDestuffingCoordinator_LoadPlan(t *testing.T) {
	h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
	h.backend.addContainer("C2", domain.WorkingStatusWaiting, domain.RawHblRecord{HblID: "H3"})
	h.backend.plan = &domain.Plan{ID: testPlanID, Status: domain.PlanStatusInProgress, ContainerIDs: []string{"C1", "C2"}}

	view, err := h.coordinator.LoadPlan(context.Background(), testPlanID)
	require.NoError(t, err)
	require.Len(t, view.Containers, 2)
	assert.Equal(t, "C1", view.Containers[0].Container.ContainerID)
	assert.Equal(t, "C2", view.Containers[1].Container.ContainerID)
	assert.Len(t, view.Containers[1].Hbls, 1)

	_, err = h.coordinator.LoadPlan(context.Background(), "PLAN-404")
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestDestuffingCoordinator_StaleEntryServedOnFetchFailure(t *testing.T) {
	h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	h.coordinator.cache.clock = func() time.Time { return now }
	h.load(t)

	now = now.Add(2 * time.Minute)
	h.backend.fetchErr = domain.ErrCollaboratorUnavailable

	view, err := h.coordinator.GetContainer(context.Background(), refC1)
	require.NoError(t, err)
	assert.Len(t, view.Hbls, 2)

	_, err = h.coordinator.GetContainer(context.Background(), ContainerRef{PlanID: testPlanID, ContainerID: "C9"})
	assert.ErrorIs(t, err, domain.ErrCollaboratorUnavailable)
}

func TestDestuffingCoordinator_ContainerNotFound(t *testing.T) {
	h := newHarness(t, true)
	_, err := h.coordinator.LoadContainer(context.Background(), refC1)
	assert.ErrorIs(t, err, domain.ErrContainerNotFound)
}

func TestDestuffingCoordinator_StartDestuffYieldsToRefetchDuringSessionCall(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
	h.inspection.gate = make(chan struct{})
	h.inspection.entered = make(chan struct{}, 1)
	h.load(t)

	done := make(chan *StartDestuffResult, 1)
	go func() {
		res, err := h.coordinator.StartDestuff(ctx, StartDestuffCommand{ContainerRef: refC1, HblID: "H1"})
		assert.NoError(t, err)
		done <- res
	}()
	<-h.inspection.entered

	// the inspection event refetches while the session call is suspended
	h.backend.setLive("C1",
		domain.HblDestuffStatus{HblID: "H1", PackingListID: "PL-1", DestuffStatus: domain.DestuffStatusDone},
		domain.HblDestuffStatus{HblID: "H2", PackingListID: "PL-2", DestuffStatus: domain.DestuffStatusDone},
	)
	reconciled := h.load(t)
	require.Equal(t, domain.DestuffStatusDone, statusOf(t, reconciled, "H1"))

	close(h.inspection.gate)
	res := <-done
	require.NotNil(t, res)
	assert.Equal(t, domain.DestuffStatusDone, statusOf(t, res.View, "H1"))
	assert.False(t, res.View.Provisional)

	view, err := h.coordinator.GetContainer(ctx, refC1)
	require.NoError(t, err)
	assert.Equal(t, domain.DestuffStatusDone, statusOf(t, view, "H1"))
	assert.False(t, view.Provisional)
	assert.True(t, view.CanComplete, view.Blocker)
}

func TestDestuffingCoordinator_RecordResultYieldsToRefetchDuringCall(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
	h.backend.recordGate = make(chan struct{})
	h.backend.recordEntered = make(chan struct{}, 1)
	h.load(t)

	done := make(chan *RecordResultOutcome, 1)
	go func() {
		out, err := h.coordinator.RecordResult(ctx, RecordResultCommand{
			ContainerRef: refC1,
			HblID:        "H1",
			Result:       domain.DestuffResult{Note: "local note"},
		})
		assert.NoError(t, err)
		done <- out
	}()
	<-h.backend.recordEntered

	h.backend.setLive("C1",
		domain.HblDestuffStatus{HblID: "H1", PackingListID: "PL-1", DestuffStatus: domain.DestuffStatusOnHold},
		domain.HblDestuffStatus{HblID: "H2", PackingListID: "PL-2", DestuffStatus: domain.DestuffStatusWaiting},
	)
	h.load(t)

	close(h.backend.recordGate)
	out := <-done
	require.NotNil(t, out)
	row, ok := out.View.Hbl("H1")
	require.True(t, ok)
	assert.Equal(t, domain.DestuffStatusOnHold, row.DestuffStatus)
	assert.Nil(t, row.DestuffResult, "the refetched payload is not patched")
	assert.False(t, out.View.Provisional)
}

func TestDestuffingCoordinator_SameHblIDAcrossContainersRunsConcurrently(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
	h.backend.addContainer("C2", domain.WorkingStatusInProgress, domain.RawHblRecord{HblID: "H1"})
	h.backend.setLive("C2", domain.HblDestuffStatus{HblID: "H1", PackingListID: "PL-9", DestuffStatus: domain.DestuffStatusWaiting})
	refC2 := ContainerRef{PlanID: testPlanID, ContainerID: "C2"}
	h.inspection.gate = make(chan struct{})
	h.inspection.entered = make(chan struct{}, 2)
	h.load(t)
	_, err := h.coordinator.LoadContainer(ctx, refC2)
	require.NoError(t, err)

	errs := make(chan error, 2)
	for _, ref := range []ContainerRef{refC1, refC2} {
		go func() {
			_, err := h.coordinator.StartDestuff(ctx, StartDestuffCommand{ContainerRef: ref, HblID: "H1"})
			errs <- err
		}()
	}
	<-h.inspection.entered
	<-h.inspection.entered

	view, err := h.coordinator.GetContainer(ctx, refC2)
	require.NoError(t, err)
	assert.Equal(t, []string{"H1"}, view.Processing)

	close(h.inspection.gate)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	assert.Equal(t, 2, h.inspection.count())
}

func TestDestuffingCoordinator_CompleteSurvivesRefetchDuringCall(t *testing.T) {
	for _, refetchFails := range []bool{false, true} {
		t.Run(fmt.Sprintf("refetch_fails=%v", refetchFails), func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, true).withC1(domain.WorkingStatusInProgress)
			h.backend.setLive("C1",
				domain.HblDestuffStatus{HblID: "H1", PackingListID: "PL-1", DestuffStatus: domain.DestuffStatusDone},
				domain.HblDestuffStatus{HblID: "H2", PackingListID: "PL-2"},
			)
			h.backend.completeGate = make(chan struct{})
			h.backend.completeEntered = make(chan struct{}, 1)
			h.load(t)

			done := make(chan *CompletionResult, 1)
			go func() {
				res, err := h.coordinator.Complete(ctx, CompleteCommand{ContainerRef: refC1})
				assert.NoError(t, err)
				done <- res
			}()
			<-h.backend.completeEntered

			// this snapshot predates the completion
			reconciled := h.load(t)
			require.Equal(t, domain.WorkingStatusInProgress, reconciled.Container.WorkingStatus)
			if refetchFails {
				h.backend.mu.Lock()
				h.backend.fetchErr = domain.ErrCollaboratorUnavailable
				h.backend.mu.Unlock()
			}

			close(h.backend.completeGate)
			res := <-done
			require.NotNil(t, res)
			assert.Equal(t, OutcomeCompleted, res.Outcome)
			assert.Equal(t, domain.WorkingStatusDone, res.View.Container.WorkingStatus)
			assert.Equal(t, domain.CargoEmpty, res.View.Container.CargoLoadedStatus)
			assert.False(t, res.View.CanComplete)

			view, err := h.coordinator.GetContainer(ctx, refC1)
			require.NoError(t, err)
			assert.Equal(t, domain.WorkingStatusDone, view.Container.WorkingStatus)
		})
	}
}

func TestDestuffingCoordinator_UnsealSurvivesRefetchDuringCall(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true).withC1(domain.WorkingStatusWaiting)
	h.load(t)

	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	h.coordinator.deps.Backend = &gatedUnseal{fakeBackend: h.backend, gate: gate, entered: entered}

	done := make(chan *ContainerView, 1)
	go func() {
		view, err := h.coordinator.Unseal(ctx, UnsealCommand{ContainerRef: refC1})
		assert.NoError(t, err)
		done <- view
	}()
	<-entered
	reconciled := h.load(t)
	require.Equal(t, domain.WorkingStatusWaiting, reconciled.Container.WorkingStatus)

	close(gate)
	view := <-done
	require.NotNil(t, view)
	assert.Equal(t, domain.WorkingStatusInProgress, view.Container.WorkingStatus)
}

// gatedUnseal holds UnsealContainer before the backend applies it
type gatedUnseal struct {
	*fakeBackend
	gate    chan struct{}
	entered chan struct{}
}

func (g *gatedUnseal) UnsealContainer(ctx context.Context, planID, containerID string) error {
	g.entered <- struct{}{}
	select {
	case <-g.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.fakeBackend.UnsealContainer(ctx, planID, containerID)
}
