package dto

// CreateJigRequestRequest payload for opening a jig (tooling) request.
type CreateJigRequestRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	JigType     string `json:"jigType" validate:"max=100"`
	Requester   string `json:"requester" validate:"required"`
	Destination string `json:"destination"`
	Approver    string `json:"approver"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	DueDate     string `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	Description string `json:"description" validate:"max=2000"`
}

// UpdateJigRequestRequest edits the free fields of a jig request. Nil fields are left unchanged.
type UpdateJigRequestRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	JigType     *string `json:"jigType" validate:"omitempty,max=100"`
	Requester   *string `json:"requester" validate:"omitempty,min=1"`
	Destination *string `json:"destination"`
	Approver    *string `json:"approver"`
	Quantity    *int    `json:"quantity" validate:"omitempty,gt=0"`
	DueDate     *string `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}
