package syncer

import "loancal/internal/models"

// ActionKind is the decision made for a single loan.
type ActionKind int

const (
	ActionNoOp ActionKind = iota
	ActionCreate
	ActionUpdate
)

func (k ActionKind) String() string {
	switch k {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	default:
		return "noop"
	}
}

// Action pairs a loan with what must happen to its calendar event.
// Event is the matched remote event for updates and no-ops, nil for creates.
type Action struct {
	Kind  ActionKind
	Loan  models.Loan
	Event *models.Event
}

// Reconcile decides, for every loan in order, whether its event must be
// created, updated or left alone. When several events share an id only the
// first one is considered.
func Reconcile(loans []models.Loan, events []models.Event) []Action {
	actions := make([]Action, 0, len(loans))
	for _, loan := range loans {
		actions = append(actions, decide(loan, events))
	}
	return actions
}

func decide(loan models.Loan, events []models.Event) Action {
	id := loan.ID()
	for i := range events {
		if events[i].ID != id {
			continue
		}
		matched := events[i]
		if matched.UpToDateWith(loan) {
			return Action{Kind: ActionNoOp, Loan: loan, Event: &matched}
		}
		return Action{Kind: ActionUpdate, Loan: loan, Event: &matched}
	}
	return Action{Kind: ActionCreate, Loan: loan}
}
