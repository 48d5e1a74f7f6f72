package models

// Counter is the document backing one logical id sequence.
type Counter struct {
	Count int `json:"count"`
}

// Counter document ids.
const (
	CounterJigRequests        = "jig-requests-counter"
	CounterSampleRequests     = "sample-requests-counter"
	CounterProductionRequests = "production-requests-counter"
)
