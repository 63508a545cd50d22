package dto

type HealthCheckRequest struct{}

// HealthCheckResponse reports liveness plus the configured store driver
type HealthCheckResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Store   string `json:"store"`
	Time    int64  `json:"time"`
}
