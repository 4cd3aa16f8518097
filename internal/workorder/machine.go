package workorder

import (
	"fmt"
	"time"

	"orderline/internal/domain"
)

// TransitionError reports an event that is not legal from the order's
// current status. The snapshot it was computed from is never modified.
type TransitionError struct {
	WorkOrderID string
	Status      domain.Status
	Event       domain.Event
	Reason      string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition: %s not allowed while %s", e.Event, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// NotAssigneeError refuses a start by anyone other than the user the
// order was pushed to.
type NotAssigneeError struct {
	WorkOrderID    string
	PushedToUserID string
	ActorID        string
}

func (e *NotAssigneeError) Error() string {
	return fmt.Sprintf("work order %s is pushed to %s, not %s", e.WorkOrderID, e.PushedToUserID, e.ActorID)
}

// Apply runs one lifecycle event against a work order snapshot and
// returns the updated copy. actorID names the user the event concerns:
// the assignee for push, the worker for start and submit_qa. Other
// events ignore it. Illegal (status, event) pairs fail; there is no
// silent no-op, and closed orders accept nothing.
func Apply(w domain.WorkOrder, ev domain.Event, actorID string, now time.Time) (domain.WorkOrder, error) {
	switch ev {
	case domain.EventPush:
		if w.Status != domain.StatusPending {
			return w, invalid(w, ev, "")
		}
		w.Status = domain.StatusPushedToUser
		w.PushedToUserID = actorID
		return w, nil

	case domain.EventStart:
		if w.Status != domain.StatusPushedToUser {
			return w, invalid(w, ev, "")
		}
		if w.PushedToUserID != "" && w.PushedToUserID != actorID {
			return w, &NotAssigneeError{WorkOrderID: w.WorkOrderID, PushedToUserID: w.PushedToUserID, ActorID: actorID}
		}
		w.Status = domain.StatusInProgress
		w.InProgressUserID = actorID
		w.CurrentStartTime = timePtr(now)
		return w, nil

	case domain.EventPause:
		if w.Status != domain.StatusInProgress {
			return w, invalid(w, ev, "")
		}
		if w.CurrentStartTime == nil {
			return w, invalid(w, ev, "no interval running")
		}
		w = Accumulate(w, now)
		w.Status = domain.StatusPushedToUser
		return w, nil

	case domain.EventSubmitQA:
		if w.Status != domain.StatusInProgress {
			return w, invalid(w, ev, "")
		}
		if w.CurrentStartTime == nil {
			return w, invalid(w, ev, "no interval running")
		}
		w = Accumulate(w, now)
		w.Status = domain.StatusQASubmitted
		w.QASubmittedByID = actorID
		return w, nil

	case domain.EventApprove:
		if w.Status != domain.StatusQASubmitted {
			return w, invalid(w, ev, "")
		}
		w.Status = domain.StatusCompleted
		return w, nil

	case domain.EventReject:
		if w.Status != domain.StatusQASubmitted {
			return w, invalid(w, ev, "")
		}
		w.Status = domain.StatusInProgress
		w.CurrentStartTime = timePtr(now)
		return w, nil

	case domain.EventCancel:
		if w.Status.Terminal() {
			return w, invalid(w, ev, "")
		}
		if w.CurrentStartTime != nil {
			w = Accumulate(w, now)
		}
		w.Status = domain.StatusCancelled
		return w, nil
	}
	return w, invalid(w, ev, "unknown event")
}

func invalid(w domain.WorkOrder, ev domain.Event, reason string) error {
	return &TransitionError{WorkOrderID: w.WorkOrderID, Status: w.Status, Event: ev, Reason: reason}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
