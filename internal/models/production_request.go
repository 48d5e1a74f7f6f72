package models

import (
	"fmt"
	"time"
)

// ProductionStatus captures the lifecycle of a production (work) request.
type ProductionStatus string

const (
	ProductionStatusRequest    ProductionStatus = "REQUEST"
	ProductionStatusScheduled  ProductionStatus = "SCHEDULED"
	ProductionStatusInProgress ProductionStatus = "IN_PROGRESS"
	ProductionStatusCompleted  ProductionStatus = "COMPLETED"
	ProductionStatusHold       ProductionStatus = "HOLD"
	ProductionStatusCancelled  ProductionStatus = "CANCELLED"
)

var ProductionStatuses = []ProductionStatus{
	ProductionStatusRequest, ProductionStatusScheduled, ProductionStatusInProgress,
	ProductionStatusCompleted, ProductionStatusHold, ProductionStatusCancelled,
}

func (s ProductionStatus) Valid() bool {
	for _, v := range ProductionStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ProductionRequest schedules a production run on a line.
type ProductionRequest struct {
	ID             string           `json:"id"`
	ProductName    string           `json:"productName"`
	ProductionLine string           `json:"productionLine"`
	Quantity       int              `json:"quantity"`
	Requester      string           `json:"requester"`
	ScheduledDate  string           `json:"scheduledDate,omitempty"`
	Description    string           `json:"description,omitempty"`
	Status         ProductionStatus `json:"status"`
	CreatedBy      string           `json:"createdBy"`
	CreatedAt      time.Time        `json:"createdAt"`
	Tracked
}

func (r *ProductionRequest) Kind() RecordKind      { return KindProductionRequest }
func (r *ProductionRequest) RecordID() string      { return r.ID }
func (r *ProductionRequest) CurrentStatus() string { return string(r.Status) }

func (r *ProductionRequest) SetStatus(status string) error {
	s := ProductionStatus(status)
	if !s.Valid() {
		return fmt.Errorf("unknown production request status %q", status)
	}
	r.Status = s
	return nil
}

func (r *ProductionRequest) Clone() Record {
	out := *r
	out.Tracked = r.Tracked.clone()
	return &out
}
