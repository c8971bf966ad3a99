package syncer

import (
	"context"
	"loancal/internal/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

var sample = models.Loan{
	LentDate: day("2024-01-10"),
	DueDate:  day("2024-01-24"),
	Title:    "Sample Book",
}

func kinds(actions []Action) []ActionKind {
	out := make([]ActionKind, len(actions))
	for i, a := range actions {
		out[i] = a.Kind
	}
	return out
}

func TestReconcileScenarios(t *testing.T) {
	reserved := sample
	reserved.Reserved = true

	tests := []struct {
		name   string
		loan   models.Loan
		events []models.Event
		want   ActionKind
	}{
		{
			name:   "no events",
			loan:   sample,
			events: nil,
			want:   ActionCreate,
		},
		{
			name:   "only unrelated events",
			loan:   sample,
			events: []models.Event{{ID: "other", End: day("2024-01-25")}},
			want:   ActionCreate,
		},
		{
			name:   "reservation added",
			loan:   reserved,
			events: []models.Event{{ID: sample.ID(), Summary: "Sample Book", End: day("2024-01-25")}},
			want:   ActionUpdate,
		},
		{
			name:   "reserved and marked",
			loan:   reserved,
			events: []models.Event{{ID: sample.ID(), Summary: "[予約有] Sample Book", End: day("2024-01-25")}},
			want:   ActionNoOp,
		},
		{
			name:   "due date extended",
			loan:   models.Loan{LentDate: sample.LentDate, Title: sample.Title, DueDate: day("2024-02-07")},
			events: []models.Event{{ID: sample.ID(), Summary: "Sample Book", End: day("2024-01-25")}},
			want:   ActionUpdate,
		},
		{
			name:   "unchanged",
			loan:   sample,
			events: []models.Event{{ID: sample.ID(), Summary: "Sample Book", End: day("2024-01-25")}},
			want:   ActionNoOp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions := Reconcile([]models.Loan{tt.loan}, tt.events)
			require.Len(t, actions, 1)
			assert.Equal(t, tt.want, actions[0].Kind)
			assert.Equal(t, tt.loan, actions[0].Loan)
			if tt.want == ActionCreate {
				assert.Nil(t, actions[0].Event)
			} else {
				require.NotNil(t, actions[0].Event)
				assert.Equal(t, tt.loan.ID(), actions[0].Event.ID)
			}
		})
	}
}

func TestReconcileFirstMatchWins(t *testing.T) {
	events := []models.Event{
		{ID: sample.ID(), ETag: `"first"`, Summary: "Sample Book", End: day("2024-01-20")},
		{ID: sample.ID(), ETag: `"second"`, Summary: "Sample Book", End: day("2024-01-25")},
	}

	actions := Reconcile([]models.Loan{sample}, events)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionUpdate, actions[0].Kind, "the up-to-date duplicate must not be considered")
	assert.Equal(t, `"first"`, actions[0].Event.ETag)

	events[0], events[1] = events[1], events[0]
	actions = Reconcile([]models.Loan{sample}, events)
	assert.Equal(t, ActionNoOp, actions[0].Kind)
	assert.Equal(t, `"second"`, actions[0].Event.ETag)
}

func TestReconcileKeepsLoanOrder(t *testing.T) {
	second := models.Loan{LentDate: day("2024-01-12"), DueDate: day("2024-01-26"), Title: "Second"}
	third := models.Loan{LentDate: day("2024-01-12"), DueDate: day("2024-01-26"), Title: "Third"}
	events := []models.Event{second.Event()}

	actions := Reconcile([]models.Loan{sample, second, third}, events)
	assert.Equal(t, []ActionKind{ActionCreate, ActionNoOp, ActionCreate}, kinds(actions))
	assert.Equal(t, "Third", actions[2].Loan.Title)
}

func TestReconcileIsPure(t *testing.T) {
	loans := []models.Loan{sample, {LentDate: day("2024-01-11"), DueDate: day("2024-01-25"), Title: "Other", Reserved: true}}
	events := []models.Event{{ID: sample.ID(), ETag: `"1"`, Summary: "[予約有] Sample Book", End: day("2024-01-25")}}
	before := append([]models.Event(nil), events...)

	first := Reconcile(loans, events)
	second := Reconcile(loans, events)
	assert.Equal(t, first, second)
	assert.Equal(t, before, events)
}

func TestReconcileConverges(t *testing.T) {
	loans := []models.Loan{
		sample,
		{LentDate: day("2024-01-11"), DueDate: day("2024-02-01"), Title: "Reserved Book", Reserved: true},
		{LentDate: day("2024-01-12"), DueDate: day("2024-02-29"), Title: "Leap Day"},
	}
	events := []models.Event{
		{ID: "unrelated", Summary: "Dentist", End: day("2024-01-05")},
		{ID: loans[1].ID(), ETag: `"7"`, Summary: "Reserved Book", End: day("2024-01-20")},
	}

	fake := newFakeCalendar(events...)
	for _, a := range Reconcile(loans, events) {
		switch a.Kind {
		case ActionCreate:
			require.NoError(t, fake.CreateEvent(context.Background(), a.Loan))
		case ActionUpdate:
			require.NoError(t, fake.UpdateEvent(context.Background(), a.Loan, *a.Event))
		}
	}

	for _, a := range Reconcile(loans, fake.events) {
		assert.Equal(t, ActionNoOp, a.Kind, "loan %q", a.Loan.Title)
	}
	assert.Len(t, fake.events, 4, "no duplicates and no deletions")
}

func TestActionKindString(t *testing.T) {
	assert.Equal(t, "create", ActionCreate.String())
	assert.Equal(t, "update", ActionUpdate.String())
	assert.Equal(t, "noop", ActionNoOp.String())
}
