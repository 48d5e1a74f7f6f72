package models

import (
	"fmt"
	"time"
)

// InspectionStatus captures the outcome lifecycle of a quality inspection.
type InspectionStatus string

const (
	InspectionStatusPending    InspectionStatus = "PENDING"
	InspectionStatusInProgress InspectionStatus = "IN_PROGRESS"
	InspectionStatusPassed     InspectionStatus = "PASSED"
	InspectionStatusFailed     InspectionStatus = "FAILED"
	InspectionStatusHold       InspectionStatus = "HOLD"
)

var InspectionStatuses = []InspectionStatus{
	InspectionStatusPending, InspectionStatusInProgress, InspectionStatusPassed,
	InspectionStatusFailed, InspectionStatusHold,
}

func (s InspectionStatus) Valid() bool {
	for _, v := range InspectionStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// QualityInspection logs an inspection of a production lot.
type QualityInspection struct {
	ID          string           `json:"id"`
	ProductName string           `json:"productName"`
	LotNumber   string           `json:"lotNumber"`
	Inspector   string           `json:"inspector"`
	SampleSize  int              `json:"sampleSize"`
	DefectCount int              `json:"defectCount"`
	InspectedAt string           `json:"inspectedAt,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	Status      InspectionStatus `json:"status"`
	CreatedBy   string           `json:"createdBy"`
	CreatedAt   time.Time        `json:"createdAt"`
	Tracked
}

func (r *QualityInspection) Kind() RecordKind      { return KindQualityInspection }
func (r *QualityInspection) RecordID() string      { return r.ID }
func (r *QualityInspection) CurrentStatus() string { return string(r.Status) }

func (r *QualityInspection) SetStatus(status string) error {
	s := InspectionStatus(status)
	if !s.Valid() {
		return fmt.Errorf("unknown quality inspection status %q", status)
	}
	r.Status = s
	return nil
}

func (r *QualityInspection) Clone() Record {
	out := *r
	out.Tracked = r.Tracked.clone()
	return &out
}

// DefectRate returns defects per inspected unit, 0 when nothing was sampled.
func (r *QualityInspection) DefectRate() float64 {
	if r.SampleSize <= 0 {
		return 0
	}
	return float64(r.DefectCount) / float64(r.SampleSize)
}
