package models

import "time"

const (
	RequestStatusNew        = "new"
	RequestStatusSearching  = "searching"
	RequestStatusInProgress = "in_progress"
	RequestStatusCompleted  = "completed"
	RequestStatusCancelled  = "cancelled"
)

// RequestTypes lists the appliance categories a request may be filed under.
var RequestTypes = []string{"washing_machine", "refrigerator", "oven", "dishwasher", "tv", "computer", "other"}

// Request is a repair job posted by a client.
type Request struct {
	ID                 int64      `json:"id"`
	ClientID           int64      `json:"client_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Type               string     `json:"type"`
	Brand              *string    `json:"brand,omitempty"`
	Model              *string    `json:"model,omitempty"`
	Photos             []string   `json:"photos"`
	Address            string     `json:"address"`
	District           string     `json:"district"`
	Budget             *float64   `json:"budget,omitempty"`
	Status             string     `json:"status"`
	SelectedProviderID *int64     `json:"selected_provider_id,omitempty"`
	SelectedAt         *time.Time `json:"selected_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// IsOpen reports whether providers may still bid on the request.
func (r Request) IsOpen() bool {
	return r.Status == RequestStatusNew || r.Status == RequestStatusSearching
}

// RequestInput carries the fields a client supplies when posting a request.
type RequestInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Brand       *string  `json:"brand,omitempty"`
	Model       *string  `json:"model,omitempty"`
	Photos      []string `json:"photos,omitempty"`
	Address     string   `json:"address"`
	District    string   `json:"district"`
	Budget      *float64 `json:"budget,omitempty"`
}

// RequestPatch is a partial update; nil fields are left untouched.
type RequestPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Type        *string   `json:"type,omitempty"`
	Brand       *string   `json:"brand,omitempty"`
	Model       *string   `json:"model,omitempty"`
	Photos      *[]string `json:"photos,omitempty"`
	Address     *string   `json:"address,omitempty"`
	District    *string   `json:"district,omitempty"`
	Budget      *float64  `json:"budget,omitempty"`
}

// RequestFilter narrows ListRequests.
type RequestFilter struct {
	Type      string
	District  string
	Status    string
	MinBudget *float64
	MaxBudget *float64
	Sort      string
	Order     string
	Page      int
	PerPage   int

	// set by the service from the viewer
	ClientID          int64
	OpenForProviderID int64
}

// RequestPage is one page of ListRequests results.
type RequestPage struct {
	Data        []Request `json:"data"`
	Total       int       `json:"total"`
	CurrentPage int       `json:"current_page"`
	PerPage     int       `json:"per_page"`
}

// RequestStats is the per-role dashboard summary.
type RequestStats struct {
	Total             *int `json:"total,omitempty"`
	Active            *int `json:"active,omitempty"`
	Completed         *int `json:"completed,omitempty"`
	Cancelled         *int `json:"cancelled,omitempty"`
	TotalResponses    *int `json:"total_responses,omitempty"`
	AcceptedResponses *int `json:"accepted_responses,omitempty"`
	CompletedOrders   *int `json:"completed_orders,omitempty"`
	ActiveRequests    *int `json:"active_requests,omitempty"`
}
