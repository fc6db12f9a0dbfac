package dto

type AdminStatsResponse struct {
	TotalUsers        int64 `json:"total_users"`
	TotalListings     int64 `json:"total_listings"`
	AvailableListings int64 `json:"available_listings"`
	SoldListings      int64 `json:"sold_listings"`
	TotalSales        int64 `json:"total_sales"`
	TotalMessages     int64 `json:"total_messages"`
}

type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// CascadeResponse reports a finished cascading delete. Degraded is true when
// one or more best-effort cleanup steps failed.
type CascadeResponse struct {
	Message     string   `json:"message"`
	Degraded    bool     `json:"degraded"`
	FailedSteps []string `json:"failed_steps,omitempty"`
}
