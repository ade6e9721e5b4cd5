package session

import "time"

// CreateRequest defines payload for creating a new consultation session.
type CreateRequest struct {
	CreatedBy    string `json:"created_by"`
	Notes        string `json:"notes"`
	SpecialistID string `json:"specialist_id"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	CreatedBy       string    `json:"created_by"`
	Notes           string    `json:"notes"`
	SpecialistID    string    `json:"specialist_id"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
