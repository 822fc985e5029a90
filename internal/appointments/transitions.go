package appointments

import "github.com/doorstepdoctor/doorstep-api/internal/apperr"

// Actor identifies the caller of SetStatus. Only the assigned doctor moves
// the visit lifecycle by hand; confirmation happens together with payment
// completion in ResolvePayment.
type Actor struct {
	UserID string
}

func DoctorActor(userID string) Actor { return Actor{UserID: userID} }

var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCompleted, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (p PaymentStatus) Terminal() bool {
	return p == PaymentCompleted || p == PaymentFailed
}

// checkTransition validates a status change for the given actor without
// touching storage.
func checkTransition(a *Appointment, to Status, actor Actor) error {
	if actor.UserID == "" || actor.UserID != a.DoctorID {
		return apperr.Authorization("only the assigned doctor can update this appointment")
	}
	if to == StatusConfirmed {
		return apperr.Conflict("appointments are confirmed by payment, not manually")
	}

	if a.Status.Terminal() {
		return apperr.Conflict("appointment is already %s", a.Status)
	}
	if !transitionAllowed(a.Status, to) {
		return apperr.Conflict("cannot move appointment from %s to %s", a.Status, to)
	}

	switch to {
	case StatusCompleted:
		if a.PaymentStatus != PaymentCompleted {
			return apperr.Conflict("appointment cannot be %s before payment is completed", to)
		}
	case StatusCancelled:
		if a.PaymentStatus == PaymentCompleted {
			return apperr.Conflict("a paid appointment cannot be cancelled")
		}
	}
	return nil
}

func transitionAllowed(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
