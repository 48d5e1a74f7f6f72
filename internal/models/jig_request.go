package models

import (
	"fmt"
	"time"
)

// JigStatus captures the lifecycle of a jig (tooling) request.
type JigStatus string

const (
	JigStatusRequest    JigStatus = "REQUEST"
	JigStatusInProgress JigStatus = "IN_PROGRESS"
	JigStatusReceiving  JigStatus = "RECEIVING"
	JigStatusCompleted  JigStatus = "COMPLETED"
	JigStatusHold       JigStatus = "HOLD"
	JigStatusRejected   JigStatus = "REJECTED"
)

// JigStatuses lists the closed status set.
var JigStatuses = []JigStatus{
	JigStatusRequest, JigStatusInProgress, JigStatusReceiving,
	JigStatusCompleted, JigStatusHold, JigStatusRejected,
}

// Valid reports membership in the closed set.
func (s JigStatus) Valid() bool {
	for _, v := range JigStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ReceivingEligible reports whether quantity receipts may move the status.
func (s JigStatus) ReceivingEligible() bool {
	return s == JigStatusInProgress || s == JigStatusReceiving || s == JigStatusCompleted
}

// JigRequest is a tooling order tracked from request to full receipt.
type JigRequest struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	JigType          string    `json:"jigType"`
	Requester        string    `json:"requester"`
	Destination      string    `json:"destination"`
	Approver         string    `json:"approver"`
	Quantity         int       `json:"quantity"`
	ReceivedQuantity int       `json:"receivedQuantity"`
	DueDate          string    `json:"dueDate,omitempty"`
	Description      string    `json:"description,omitempty"`
	Status           JigStatus `json:"status"`
	CreatedBy        string    `json:"createdBy"`
	CreatedAt        time.Time `json:"createdAt"`
	Tracked
}

func (r *JigRequest) Kind() RecordKind      { return KindJigRequest }
func (r *JigRequest) RecordID() string      { return r.ID }
func (r *JigRequest) CurrentStatus() string { return string(r.Status) }

func (r *JigRequest) SetStatus(status string) error {
	s := JigStatus(status)
	if !s.Valid() {
		return fmt.Errorf("unknown jig request status %q", status)
	}
	r.Status = s
	return nil
}

func (r *JigRequest) Clone() Record {
	out := *r
	out.Tracked = r.Tracked.clone()
	return &out
}
