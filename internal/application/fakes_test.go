package application

import (
	"context"
	"sync"
	"time"

	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
)

// fakeBackend is an in-memory CFS backend. Live rows are served by
// FetchHblStatuses, hooks override individual calls.
type fakeBackend struct {
	mu        sync.Mutex
	plan      *domain.Plan
	records   map[string]*domain.ContainerRecord
	live      map[string][]domain.HblDestuffStatus
	calls     map[string]int
	results   []domain.DestuffResultPayload
	reseals   []domain.ResealRequest
	bypassSet map[string]bool

	fetchErr    error
	unsealErr   error
	resealErr   error
	completeErr error
	bypassErr   error
	recordErr   error

	// recordGate blocks RecordDestuffResult until closed
	recordGate    chan struct{}
	recordEntered chan struct{}

	// completeGate blocks CompleteContainer before it takes effect
	completeGate    chan struct{}
	completeEntered chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		records:   make(map[string]*domain.ContainerRecord),
		live:      make(map[string][]domain.HblDestuffStatus),
		calls:     make(map[string]int),
		bypassSet: make(map[string]bool),
	}
}

func (f *fakeBackend) addContainer(containerID string, status domain.WorkingStatus, manifest ...domain.RawHblRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[containerID] = &domain.ContainerRecord{
		Container: domain.PlanContainer{
			ContainerID:       containerID,
			ContainerNo:       "MSCU" + containerID,
			SealNumber:        "SEAL-001",
			CargoLoadedStatus: domain.CargoLoaded,
			WorkingStatus:     status,
		},
		Manifest: manifest,
	}
}

func (f *fakeBackend) setLive(containerID string, rows ...domain.HblDestuffStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[containerID] = rows
}

func (f *fakeBackend) mutate(containerID string, fn func(c *domain.PlanContainer)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.records[containerID].Container)
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, op := range []string{"unseal", "reseal", "complete", "bypass", "record"} {
		total += f.calls[op]
	}
	return total
}

func (f *fakeBackend) hit(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeBackend) FetchPlan(_ context.Context, planID string) (*domain.Plan, error) {
	f.hit("fetch-plan")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.plan == nil || f.plan.ID != planID {
		return nil, nil
	}
	plan := *f.plan
	return &plan, nil
}

func (f *fakeBackend) FetchPlanContainer(_ context.Context, _, containerID string) (*domain.ContainerRecord, error) {
	f.hit("fetch-container")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	record, ok := f.records[containerID]
	if !ok {
		return nil, nil
	}
	out := *record
	out.Manifest = append([]domain.RawHblRecord(nil), record.Manifest...)
	return &out, nil
}

func (f *fakeBackend) FetchHblStatuses(_ context.Context, _, containerID string, _ []string) ([]domain.HblDestuffStatus, error) {
	f.hit("fetch-statuses")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	rows := make([]domain.HblDestuffStatus, len(f.live[containerID]))
	for i, row := range f.live[containerID] {
		rows[i] = row.Clone()
	}
	return rows, nil
}

func (f *fakeBackend) UnsealContainer(_ context.Context, _, containerID string) error {
	f.hit("unseal")
	if f.unsealErr != nil {
		return f.unsealErr
	}
	f.mutate(containerID, func(c *domain.PlanContainer) {
		c.WorkingStatus = domain.WorkingStatusInProgress
	})
	return nil
}

func (f *fakeBackend) ResealContainer(_ context.Context, _, containerID string, req domain.ResealRequest) error {
	f.hit("reseal")
	if f.resealErr != nil {
		return f.resealErr
	}
	f.mutate(containerID, func(c *domain.PlanContainer) {
		c.NewSealNumber = req.NewSealNumber
	})
	f.mu.Lock()
	f.reseals = append(f.reseals, req)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) CompleteContainer(ctx context.Context, _, containerID string) error {
	f.hit("complete")
	f.mu.Lock()
	gate, entered := f.completeGate, f.completeEntered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if f.completeErr != nil {
		return f.completeErr
	}
	f.mutate(containerID, func(c *domain.PlanContainer) {
		c.WorkingStatus = domain.WorkingStatusDone
		c.CargoLoadedStatus = domain.CargoEmpty
	})
	return nil
}

func (f *fakeBackend) UpdateHblBypassFlag(_ context.Context, hblID string, flag bool) error {
	f.hit("bypass")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bypassErr != nil {
		return f.bypassErr
	}
	f.bypassSet[hblID] = flag
	for _, rows := range f.live {
		for i := range rows {
			if rows[i].HblID == hblID {
				rows[i].BypassStorageFlag = domain.BoolPtr(flag)
			}
		}
	}
	return nil
}

func (f *fakeBackend) RecordDestuffResult(ctx context.Context, _, _, _ string, payload domain.DestuffResultPayload) error {
	f.hit("record")
	f.mu.Lock()
	gate, entered := f.recordGate, f.recordEntered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.results = append(f.results, payload)
	return nil
}

// fakeInspection resolves sessions, optionally blocking until released
type fakeInspection struct {
	mu      sync.Mutex
	calls   int
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeInspection) GetOrCreateInspectionSession(ctx context.Context, packingListID string, _ domain.FlowType) (string, error) {
	f.mu.Lock()
	f.calls++
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return "SESSION-" + packingListID, nil
}

func (f *fakeInspection) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type staticPermissions bool

func (p staticPermissions) CanWrite(context.Context) bool { return bool(p) }

type recordingJournal struct {
	mu      sync.Mutex
	entries []domain.JournalEntry
}

func (j *recordingJournal) Append(_ context.Context, entry domain.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

func (j *recordingJournal) eventTypes() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	var types []string
	for _, e := range j.entries {
		for _, ev := range e.Events {
			types = append(types, ev.EventType())
		}
	}
	return types
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
}

func (n *recordingNotifier) NotifyContainerCompleted(_ context.Context, _, containerID string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, containerID)
	return nil
}
