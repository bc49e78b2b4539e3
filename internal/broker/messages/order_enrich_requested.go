package messages

import "time"

// OrderEnrichRequested asks the worker to refresh one order from the platform.
type OrderEnrichRequested struct {
	JobID       string    `json:"job_id"`
	OrderID     uint64    `json:"order_id"`
	CompanyID   uint64    `json:"company_id"`
	RequestedAt time.Time `json:"requested_at"`
}
