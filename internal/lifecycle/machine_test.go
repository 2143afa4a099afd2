package lifecycle

import (
	"testing"
	"time"

	"ecycle/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	requester = model.Actor{ID: "user-1", Role: model.RoleUser}
	techA     = model.Actor{ID: "tech-a", Role: model.RoleTechnician}
	techB     = model.Actor{ID: "tech-b", Role: model.RoleTechnician}
	recycler  = model.Actor{ID: "rec-1", Role: model.RoleRecycler}
	now       = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func pendingRepair() Snapshot {
	return Snapshot{ID: "req-1", RequesterID: requester.ID, Status: model.StatusPending}
}

func assignedRepair(handler string) Snapshot {
	return Snapshot{ID: "req-1", RequesterID: requester.ID, HandlerID: &handler, Status: model.StatusAssigned}
}

func TestRepairHappyPath(t *testing.T) {
	snap := pendingRepair()

	snap, err := Repair.AttemptTransition(snap, model.StatusAssigned, techA, now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAssigned, snap.Status)
	require.NotNil(t, snap.HandlerID)
	assert.Equal(t, techA.ID, *snap.HandlerID)
	assert.Equal(t, now, snap.UpdatedAt)

	for _, target := range []model.Status{model.StatusDiagnosing, model.StatusRepairing, model.StatusCompleted} {
		snap, err = Repair.AttemptTransition(snap, target, techA, now.Add(time.Minute))
		require.NoError(t, err, "transition to %s", target)
		assert.Equal(t, target, snap.Status)
		assert.Equal(t, techA.ID, *snap.HandlerID, "handler must stay stable")
	}
	assert.True(t, Repair.IsTerminal(snap.Status))
}

func TestPickupHappyPath(t *testing.T) {
	snap := Snapshot{ID: "pick-1", RequesterID: requester.ID, Status: model.StatusPending}

	snap, err := Pickup.AttemptTransition(snap, model.StatusAccepted, recycler, now)
	require.NoError(t, err)
	require.NotNil(t, snap.HandlerID)
	assert.Equal(t, recycler.ID, *snap.HandlerID)

	snap, err = Pickup.AttemptTransition(snap, model.StatusCompleted, recycler, now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, snap.Status)
}

// Exhaustive check: a transition succeeds iff the pair appears in the table
// and the actor satisfies the edge.
func TestRepairTransitionTable(t *testing.T) {
	reachable := map[model.Status]map[model.Status]bool{
		model.StatusPending:    {model.StatusAssigned: true, model.StatusCancelled: true},
		model.StatusAssigned:   {model.StatusDiagnosing: true, model.StatusCancelled: true},
		model.StatusDiagnosing: {model.StatusRepairing: true, model.StatusCancelled: true},
		model.StatusRepairing:  {model.StatusCompleted: true, model.StatusCancelled: true},
		model.StatusCompleted:  {},
		model.StatusCancelled:  {},
	}
	all := []model.Status{
		model.StatusPending, model.StatusAssigned, model.StatusDiagnosing,
		model.StatusRepairing, model.StatusCompleted, model.StatusCancelled,
	}
	handler := techA.ID

	for _, from := range all {
		for _, to := range all {
			snap := Snapshot{ID: "r", RequesterID: requester.ID, Status: from}
			if from != model.StatusPending {
				snap.HandlerID = &handler
			}
			// Pick whichever actor the edge would admit; if neither works the
			// transition must be invalid regardless.
			_, errHandler := Repair.AttemptTransition(snap, to, techA, now)
			_, errRequester := Repair.AttemptTransition(snap, to, requester, now)
			ok := errHandler == nil || errRequester == nil

			assert.Equal(t, reachable[from][to], ok, "%s -> %s", from, to)
		}
	}
}

func TestRepeatedTransitionRejected(t *testing.T) {
	snap := pendingRepair()
	snap, err := Repair.AttemptTransition(snap, model.StatusAssigned, techA, now)
	require.NoError(t, err)

	// Same transition on the post-transition snapshot is a hard failure, not
	// a silent no-op.
	_, err = Repair.AttemptTransition(snap, model.StatusAssigned, techA, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	snap, err = Repair.AttemptTransition(snap, model.StatusDiagnosing, techA, now)
	require.NoError(t, err)
	snap, err = Repair.AttemptTransition(snap, model.StatusRepairing, techA, now)
	require.NoError(t, err)
	snap, err = Repair.AttemptTransition(snap, model.StatusCompleted, techA, now)
	require.NoError(t, err)

	_, err = Repair.AttemptTransition(snap, model.StatusCompleted, techA, now)
	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestHandlerIdentityEnforced(t *testing.T) {
	snap := assignedRepair(techA.ID)

	_, err := Repair.AttemptTransition(snap, model.StatusDiagnosing, techB, now)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = Repair.AttemptTransition(snap, model.StatusDiagnosing, techA, now)
	assert.NoError(t, err)
}

func TestHandlerNeverCleared(t *testing.T) {
	snap := pendingRepair()
	snap, err := Repair.AttemptTransition(snap, model.StatusAssigned, techA, now)
	require.NoError(t, err)

	// Through every remaining state, including cancellation, the recorded
	// handler stays put.
	cancelled, err := Repair.AttemptTransition(snap, model.StatusCancelled, requester, now)
	require.NoError(t, err)
	require.NotNil(t, cancelled.HandlerID)
	assert.Equal(t, techA.ID, *cancelled.HandlerID)
}

func TestRoleGates(t *testing.T) {
	// Wrong role on a handler edge.
	_, err := Repair.AttemptTransition(pendingRepair(), model.StatusAssigned, recycler, now)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = Pickup.AttemptTransition(Snapshot{ID: "p", RequesterID: requester.ID, Status: model.StatusPending}, model.StatusAccepted, techA, now)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// The requester cannot progress their own request.
	_, err = Repair.AttemptTransition(pendingRepair(), model.StatusAssigned, requester, now)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Only the requester may cancel.
	_, err = Repair.AttemptTransition(assignedRepair(techA.ID), model.StatusCancelled, techA, now)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCancelFromAnyNonTerminal(t *testing.T) {
	handler := techA.ID
	for _, from := range []model.Status{
		model.StatusPending, model.StatusAssigned, model.StatusDiagnosing, model.StatusRepairing,
	} {
		snap := Snapshot{ID: "r", RequesterID: requester.ID, Status: from}
		if from != model.StatusPending {
			snap.HandlerID = &handler
		}
		next, err := Repair.AttemptTransition(snap, model.StatusCancelled, requester, now)
		require.NoError(t, err, "cancel from %s", from)
		assert.Equal(t, model.StatusCancelled, next.Status)
	}

	for _, from := range []model.Status{model.StatusCompleted, model.StatusCancelled} {
		snap := Snapshot{ID: "r", RequesterID: requester.ID, HandlerID: &handler, Status: from}
		_, err := Repair.AttemptTransition(snap, model.StatusCancelled, requester, now)
		assert.ErrorIs(t, err, ErrTerminalState, "cancel from %s", from)
	}
}

func TestCancelledPickupCannotBeAccepted(t *testing.T) {
	snap := Snapshot{ID: "p", RequesterID: requester.ID, Status: model.StatusPending}
	snap, err := Pickup.AttemptTransition(snap, model.StatusCancelled, requester, now)
	require.NoError(t, err)

	_, err = Pickup.AttemptTransition(snap, model.StatusAccepted, recycler, now)
	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestSetEstimate(t *testing.T) {
	snap := assignedRepair(techA.ID)

	snap, est, ev, err := Repair.SetEstimate(snap, Estimates{}, EstimateCost, 49.90, techA, now)
	require.NoError(t, err)
	require.NotNil(t, est.Cost)
	assert.Equal(t, 49.90, *est.Cost)
	assert.Equal(t, now, snap.UpdatedAt)
	assert.Equal(t, EventEstimateSet, ev.Type)
	assert.Equal(t, "estimated cost set to 49.9", ev.Message())

	due := now.Add(72 * time.Hour)
	_, est, _, err = Repair.SetEstimate(snap, est, EstimateCompletion, due, techA, now)
	require.NoError(t, err)
	require.NotNil(t, est.Completion)
	assert.Equal(t, due, *est.Completion)
	assert.NotNil(t, est.Cost, "setting one field must not clear the other")
}

func TestSetEstimateGates(t *testing.T) {
	snap := assignedRepair(techA.ID)

	// Not the handler.
	_, _, _, err := Repair.SetEstimate(snap, Estimates{}, EstimateCost, 10.0, techB, now)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, _, _, err = Repair.SetEstimate(snap, Estimates{}, EstimateCost, 10.0, requester, now)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Terminal request.
	snap.Status = model.StatusCompleted
	_, _, _, err = Repair.SetEstimate(snap, Estimates{}, EstimateCost, 10.0, techA, now)
	assert.ErrorIs(t, err, ErrTerminalState)

	snap.Status = model.StatusCancelled
	_, _, _, err = Repair.SetEstimate(snap, Estimates{}, EstimateCompletion, now, techA, now)
	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestMachineDescriptors(t *testing.T) {
	assert.Equal(t, "repair", Repair.Name())
	assert.Equal(t, model.StatusPending, Repair.Initial())
	assert.Equal(t, model.RoleTechnician, Repair.HandlerRole())
	assert.True(t, Repair.Contains(model.StatusDiagnosing))
	assert.False(t, Repair.Contains(model.StatusAccepted))

	assert.Equal(t, "pickup", Pickup.Name())
	assert.Equal(t, model.StatusPending, Pickup.Initial())
	assert.Equal(t, model.RoleRecycler, Pickup.HandlerRole())
	assert.True(t, Pickup.Contains(model.StatusAccepted))
	assert.False(t, Pickup.Contains(model.StatusRepairing))
}

func TestSetEstimateRejectsBadValues(t *testing.T) {
	snap := assignedRepair(techA.ID)

	_, _, _, err := Repair.SetEstimate(snap, Estimates{}, EstimateCost, -1.0, techA, now)
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, _, _, err = Repair.SetEstimate(snap, Estimates{}, EstimateCost, "cheap", techA, now)
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, _, _, err = Repair.SetEstimate(snap, Estimates{}, EstimateCompletion, 5, techA, now)
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, _, _, err = Repair.SetEstimate(snap, Estimates{}, EstimateField("weight"), 1.0, techA, now)
	assert.ErrorIs(t, err, ErrInvalidValue)

	// A bad value is a validation failure, never a transition one.
	assert.NotErrorIs(t, err, ErrInvalidTransition)
}

func TestNoteEvent(t *testing.T) {
	snap := assignedRepair(techA.ID)

	ev, err := Repair.NoteEvent(snap, requester, "please call before visiting", now)
	require.NoError(t, err)
	assert.Equal(t, EventNote, ev.Type)
	assert.Equal(t, requester.ID, ev.ActorID)
	assert.Equal(t, "please call before visiting", ev.Message())

	ev, err = Repair.NoteEvent(snap, techA, "ordered a replacement screen", now)
	require.NoError(t, err)
	assert.Equal(t, techA.ID, ev.ActorID)

	// Non-participants are refused; so are empty notes and terminal requests.
	_, err = Repair.NoteEvent(snap, techB, "mine now", now)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = Repair.NoteEvent(snap, requester, "", now)
	assert.ErrorIs(t, err, ErrInvalidValue)

	snap.Status = model.StatusCompleted
	_, err = Repair.NoteEvent(snap, requester, "too late", now)
	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestTransitionEventShapes(t *testing.T) {
	handler := techA.ID
	cases := []struct {
		status model.Status
		typ    EventType
	}{
		{model.StatusAssigned, EventAssigned},
		{model.StatusDiagnosing, EventStatus},
		{model.StatusCompleted, EventCompleted},
		{model.StatusCancelled, EventCancelled},
	}
	for _, tc := range cases {
		ev := TransitionEvent(Snapshot{ID: "r", HandlerID: &handler, Status: tc.status}, techA, now)
		assert.Equal(t, tc.typ, ev.Type, "status %s", tc.status)
		assert.Equal(t, string(tc.status), ev.Data["status"])
		assert.NotEmpty(t, ev.Message())
	}
}
