package dto

// CreateQualityInspectionRequest payload for logging an inspection lot.
type CreateQualityInspectionRequest struct {
	ProductName string `json:"productName" validate:"required,max=200"`
	LotNumber   string `json:"lotNumber" validate:"required,max=100"`
	Inspector   string `json:"inspector" validate:"required"`
	SampleSize  int    `json:"sampleSize" validate:"gte=0"`
	DefectCount int    `json:"defectCount" validate:"gte=0,ltefield=SampleSize"`
	InspectedAt string `json:"inspectedAt" validate:"omitempty,datetime=2006-01-02"`
	Notes       string `json:"notes" validate:"max=2000"`
}

// UpdateQualityInspectionRequest edits an inspection. Nil fields are left unchanged.
type UpdateQualityInspectionRequest struct {
	ProductName *string `json:"productName" validate:"omitempty,min=1,max=200"`
	LotNumber   *string `json:"lotNumber" validate:"omitempty,min=1,max=100"`
	Inspector   *string `json:"inspector" validate:"omitempty,min=1"`
	SampleSize  *int    `json:"sampleSize" validate:"omitempty,gte=0"`
	DefectCount *int    `json:"defectCount" validate:"omitempty,gte=0"`
	InspectedAt *string `json:"inspectedAt" validate:"omitempty,datetime=2006-01-02"`
	Notes       *string `json:"notes" validate:"omitempty,max=2000"`
}
