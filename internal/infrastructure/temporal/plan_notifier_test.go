package temporal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
	"github.com/wms-platform/cfs-destuffing-service/internal/workflows"
	"github.com/wms-platform/cfs-destuffing-service/pkg/logging"
)

type mockSignaler struct {
	mock.Mock
}

func (m *mockSignaler) SignalWithStartWorkflow(ctx context.Context, workflowID, signalName string, signalArg interface{}, workflowName string, args ...interface{}) error {
	called := m.Called(workflowID, signalName, signalArg, workflowName, args)
	return called.Error(0)
}

type mockPlans struct {
	mock.Mock
}

func (m *mockPlans) FetchPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	called := m.Called(planID)
	plan, _ := called.Get(0).(*domain.Plan)
	return plan, called.Error(1)
}

func TestPlanNotifier_SignalsWithStart(t *testing.T) {
	signaler := &mockSignaler{}
	plans := &mockPlans{}
	notifier := NewPlanNotifier(signaler, plans, logging.NewNop())

	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	plans.On("FetchPlan", "P1").Return(&domain.Plan{ID: "P1", ContainerIDs: []string{"C1", "C2"}}, nil)
	signaler.On("SignalWithStartWorkflow",
		"plan-execution-P1",
		"containerCompleted",
		workflows.ContainerCompletedSignal{ContainerID: "C1", CompletedAt: at},
		"PlanExecutionWorkflow",
		[]interface{}{workflows.PlanExecutionInput{PlanID: "P1", ContainerIDs: []string{"C1", "C2"}}},
	).Return(nil)

	require.NoError(t, notifier.NotifyContainerCompleted(context.Background(), "P1", "C1", at))
	signaler.AssertExpectations(t)
}

func TestPlanNotifier_PlanLookupFails(t *testing.T) {
	signaler := &mockSignaler{}
	plans := &mockPlans{}
	notifier := NewPlanNotifier(signaler, plans, logging.NewNop())

	plans.On("FetchPlan", "P1").Return(nil, errors.New("backend down"))
	err := notifier.NotifyContainerCompleted(context.Background(), "P1", "C1", time.Now())
	require.Error(t, err)
	signaler.AssertNotCalled(t, "SignalWithStartWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	plans2 := &mockPlans{}
	plans2.On("FetchPlan", "P2").Return(nil, nil)
	notifier = NewPlanNotifier(signaler, plans2, logging.NewNop())
	err = notifier.NotifyContainerCompleted(context.Background(), "P2", "C1", time.Now())
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestPlanNotifier_SignalError(t *testing.T) {
	signaler := &mockSignaler{}
	plans := &mockPlans{}
	notifier := NewPlanNotifier(signaler, plans, logging.NewNop())

	plans.On("FetchPlan", "P1").Return(&domain.Plan{ID: "P1", ContainerIDs: []string{"C1"}}, nil)
	signaler.On("SignalWithStartWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("frontend unavailable"))

	err := notifier.NotifyContainerCompleted(context.Background(), "P1", "C1", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan-execution-P1")
}
