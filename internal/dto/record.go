package dto

// ChangeStatusRequest moves a record to another status of its kind.
type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

// ReceiveQuantityRequest books a quantity receipt on a jig request. Negative
// deltas withdraw previously received units.
type ReceiveQuantityRequest struct {
	Delta int `json:"delta" validate:"required,ne=0"`
}

// AddCommentRequest appends a comment to a record's thread.
type AddCommentRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// RecordQuery mirrors supported listing filters.
type RecordQuery struct {
	Status string `form:"status"`
}
