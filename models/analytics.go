package models

// TypeCount is one slice of the incidents-by-type breakdown.
type TypeCount struct {
	Type  IncidentType `json:"type"`
	Count int          `json:"count"`
}

// DashboardAnalytics aggregates incident and user counts for the dashboard.
type DashboardAnalytics struct {
	TotalIncidents    int         `json:"total_incidents"`
	PendingIncidents  int         `json:"pending_incidents"`
	VerifiedIncidents int         `json:"verified_incidents"`
	ResolvedIncidents int         `json:"resolved_incidents"`
	TotalUsers        int         `json:"total_users"`
	IncidentsByType   []TypeCount `json:"incidents_by_type"`
	VerificationRate  float64     `json:"verification_rate"`
}
