package model

// HubStats is a point-in-time snapshot of Connection Registry occupancy,
// exposed through the diagnostics surface (§6's metrics/health endpoints).
type HubStats struct {
	TotalUsers       int `json:"total_users"`
	TotalConnections int `json:"total_connections"`
}
