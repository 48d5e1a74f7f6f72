package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/factory-ops-api/internal/models"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
)

// RecordChange mutates a record in place. Changes built by the Ledger capture
// their timestamps and ids up front, so re-running one yields the same entry.
type RecordChange func(rec models.Record) error

// Ledger maintains the append-only history and comment threads of records.
type Ledger struct {
	policy *TransitionPolicy
	now    func() time.Time
	newID  func() string
}

// NewLedger constructs a ledger. A nil policy allows every transition.
func NewLedger(policy *TransitionPolicy, now func() time.Time) *Ledger {
	if policy == nil {
		policy = NewTransitionPolicy(false)
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{policy: policy, now: now, newID: uuid.NewString}
}

// Policy returns the transition policy in force.
func (l *Ledger) Policy() *TransitionPolicy { return l.policy }

// Now returns the ledger clock in UTC.
func (l *Ledger) Now() time.Time { return l.now().UTC() }

// Seed appends the creation entry matching the record's initial status.
func (l *Ledger) Seed(rec models.Record, actor models.Actor) {
	rec.AppendHistory(models.HistoryEntry{Status: rec.CurrentStatus(), Date: l.Now(), User: actorName(actor)})
}

// Transition returns a change that sets status and appends the history entry.
func (l *Ledger) Transition(status string, actor models.Actor, reason string) (RecordChange, error) {
	name := actorName(actor)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "actor is required")
	}
	status = strings.ToUpper(strings.TrimSpace(status))
	at := l.Now()
	return func(rec models.Record) error {
		from := rec.CurrentStatus()
		if err := rec.SetStatus(status); err != nil {
			return appErrors.WrapAs(appErrors.ErrValidation, err, err.Error())
		}
		if err := l.policy.Check(rec.Kind(), from, status, actor.Role); err != nil {
			return err
		}
		rec.AppendHistory(models.HistoryEntry{Status: status, Date: at, User: name, Reason: reason})
		return nil
	}, nil
}

// Receive returns a change booking delta units on a jig request. Receipts
// move the status only from IN_PROGRESS, RECEIVING or COMPLETED: reaching the
// ordered quantity completes it, a partial total is RECEIVING and a total of
// zero or less returns it to IN_PROGRESS.
func (l *Ledger) Receive(delta int, actor models.Actor) (RecordChange, error) {
	name := actorName(actor)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "actor is required")
	}
	if delta == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "delta must not be zero")
	}
	at := l.Now()
	return func(rec models.Record) error {
		jig, ok := rec.(*models.JigRequest)
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s does not track received quantity", rec.Kind().Label()))
		}
		from := jig.Status
		jig.ReceivedQuantity += delta
		if !from.ReceivingEligible() {
			return nil
		}
		to := deriveReceivingStatus(jig.ReceivedQuantity, jig.Quantity)
		jig.Status = to
		jig.AppendHistory(models.HistoryEntry{
			Status: string(to),
			Date:   at,
			User:   name,
			Reason: ReceiptReason(delta, jig.ReceivedQuantity, jig.Quantity, from != models.JigStatusCompleted && to == models.JigStatusCompleted),
		})
		return nil
	}, nil
}

// Comment returns the new comment and the change appending it.
func (l *Ledger) Comment(actor models.Actor, text string) (models.Comment, RecordChange, error) {
	name := actorName(actor)
	text = strings.TrimSpace(text)
	switch {
	case name == "":
		return models.Comment{}, nil, appErrors.Clone(appErrors.ErrValidation, "actor is required")
	case text == "":
		return models.Comment{}, nil, appErrors.Clone(appErrors.ErrValidation, "comment text is required")
	}
	comment := models.Comment{ID: l.newID(), User: name, Date: l.Now(), Text: text, ReadBy: []string{}}
	return comment, func(rec models.Record) error {
		for _, existing := range rec.CommentThread() {
			if existing.ID == comment.ID {
				return nil
			}
		}
		c := comment
		c.ReadBy = []string{}
		rec.AppendComment(c)
		return nil
	}, nil
}

// MarkCommentsRead returns a change adding userID to every comment's readBy.
func (l *Ledger) MarkCommentsRead(userID string) (RecordChange, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}
	return func(rec models.Record) error {
		rec.MarkCommentsRead(userID)
		return nil
	}, nil
}

func deriveReceivingStatus(received, quantity int) models.JigStatus {
	switch {
	case received >= quantity:
		return models.JigStatusCompleted
	case received > 0:
		return models.JigStatusReceiving
	default:
		return models.JigStatusInProgress
	}
}

// ReceiptReason describes a receipt for the history log.
func ReceiptReason(delta, total, quantity int, completed bool) string {
	var b strings.Builder
	if delta > 0 {
		fmt.Fprintf(&b, "received %d", delta)
	} else {
		fmt.Fprintf(&b, "withdrawn %d", -delta)
	}
	fmt.Fprintf(&b, " (total %d/%d)", total, quantity)
	if completed {
		b.WriteString(", fully received")
	}
	return b.String()
}

func actorName(actor models.Actor) string {
	if name := strings.TrimSpace(actor.Name); name != "" {
		return name
	}
	return strings.TrimSpace(actor.UserID)
}
