package dto

// CreateSampleRequestRequest payload for a customer sample request.
type CreateSampleRequestRequest struct {
	ProductName string `json:"productName" validate:"required,max=200"`
	Customer    string `json:"customer" validate:"required,max=200"`
	Requester   string `json:"requester" validate:"required"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	DueDate     string `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	Description string `json:"description" validate:"max=2000"`
}

// UpdateSampleRequestRequest edits a sample request. Nil fields are left unchanged.
type UpdateSampleRequestRequest struct {
	ProductName *string `json:"productName" validate:"omitempty,min=1,max=200"`
	Customer    *string `json:"customer" validate:"omitempty,min=1,max=200"`
	Requester   *string `json:"requester" validate:"omitempty,min=1"`
	Quantity    *int    `json:"quantity" validate:"omitempty,gt=0"`
	DueDate     *string `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}
