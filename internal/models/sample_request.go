package models

import (
	"fmt"
	"time"
)

// SampleStatus captures the lifecycle of a customer sample request.
type SampleStatus string

const (
	SampleStatusRequest    SampleStatus = "REQUEST"
	SampleStatusInProgress SampleStatus = "IN_PROGRESS"
	SampleStatusCompleted  SampleStatus = "COMPLETED"
	SampleStatusHold       SampleStatus = "HOLD"
	SampleStatusRejected   SampleStatus = "REJECTED"
)

var SampleStatuses = []SampleStatus{
	SampleStatusRequest, SampleStatusInProgress, SampleStatusCompleted,
	SampleStatusHold, SampleStatusRejected,
}

func (s SampleStatus) Valid() bool {
	for _, v := range SampleStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// SampleRequest tracks a sample build for a customer.
type SampleRequest struct {
	ID          string       `json:"id"`
	ProductName string       `json:"productName"`
	Customer    string       `json:"customer"`
	Requester   string       `json:"requester"`
	Quantity    int          `json:"quantity"`
	DueDate     string       `json:"dueDate,omitempty"`
	Description string       `json:"description,omitempty"`
	Status      SampleStatus `json:"status"`
	CreatedBy   string       `json:"createdBy"`
	CreatedAt   time.Time    `json:"createdAt"`
	Tracked
}

func (r *SampleRequest) Kind() RecordKind      { return KindSampleRequest }
func (r *SampleRequest) RecordID() string      { return r.ID }
func (r *SampleRequest) CurrentStatus() string { return string(r.Status) }

func (r *SampleRequest) SetStatus(status string) error {
	s := SampleStatus(status)
	if !s.Valid() {
		return fmt.Errorf("unknown sample request status %q", status)
	}
	r.Status = s
	return nil
}

func (r *SampleRequest) Clone() Record {
	out := *r
	out.Tracked = r.Tracked.clone()
	return &out
}
