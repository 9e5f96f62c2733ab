package models

import "time"

const (
	ResponseStatusPending   = "pending"
	ResponseStatusAccepted  = "accepted"
	ResponseStatusRejected  = "rejected"
	ResponseStatusCancelled = "cancelled"
)

// Response is a provider's bid on a request.
type Response struct {
	ID            int64      `json:"id"`
	RequestID     int64      `json:"request_id"`
	ProviderID    int64      `json:"provider_id"`
	Price         float64    `json:"price"`
	Message       string     `json:"message"`
	EstimatedTime *int       `json:"estimated_time,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// ResponseInput is the body of a bid submission.
type ResponseInput struct {
	Price         float64 `json:"price"`
	Message       string  `json:"message"`
	EstimatedTime *int    `json:"estimated_time,omitempty"`
}

// Selection is the result of a client choosing a winning response.
type Selection struct {
	Request  Request  `json:"request"`
	Response Response `json:"response"`
	Chat     Chat     `json:"chat"`
}
