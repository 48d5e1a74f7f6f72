package dto

// CreateProductionRequestRequest payload for scheduling a production run.
type CreateProductionRequestRequest struct {
	ProductName    string `json:"productName" validate:"required,max=200"`
	ProductionLine string `json:"productionLine" validate:"required,max=100"`
	Quantity       int    `json:"quantity" validate:"required,gt=0"`
	Requester      string `json:"requester" validate:"required"`
	ScheduledDate  string `json:"scheduledDate" validate:"omitempty,datetime=2006-01-02"`
	Description    string `json:"description" validate:"max=2000"`
}

// UpdateProductionRequestRequest edits a production request. Nil fields are left unchanged.
type UpdateProductionRequestRequest struct {
	ProductName    *string `json:"productName" validate:"omitempty,min=1,max=200"`
	ProductionLine *string `json:"productionLine" validate:"omitempty,min=1,max=100"`
	Quantity       *int    `json:"quantity" validate:"omitempty,gt=0"`
	Requester      *string `json:"requester" validate:"omitempty,min=1"`
	ScheduledDate  *string `json:"scheduledDate" validate:"omitempty,datetime=2006-01-02"`
	Description    *string `json:"description" validate:"omitempty,max=2000"`
}
