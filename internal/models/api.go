package models

import "time"

// EvaluationsPayload is the request body for submitting evaluations.
type EvaluationsPayload struct {
	Evaluations []Evaluation `json:"evaluations"`
}

// Validate checks all evaluations in the payload.
func (p EvaluationsPayload) Validate() error {
	for _, evaluation := range p.Evaluations {
		if err := evaluation.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// LookupPositionsPayload is the request body for position lookups.
type LookupPositionsPayload struct {
	FENs []string `json:"fens"`
}

// RegisterRequest registers a client with the book server.
type RegisterRequest struct {
	Hostname   string `json:"hostname"`
	EngineName string `json:"engine_name"`
}

// RegisterResponse carries the ID assigned to a registered client.
type RegisterResponse struct {
	ClientID string `json:"client_id"`
}

// ClientStats describes one registered client.
type ClientStats struct {
	ID                string    `json:"id"`
	Hostname          string    `json:"hostname"`
	EngineName        string    `json:"engine_name"`
	AnalysesSubmitted int       `json:"analyses_submitted"`
	LastActive        time.Time `json:"last_active"`
}

// StatsResponse lists registered clients.
type StatsResponse struct {
	Clients []ClientStats `json:"clients"`
}

// BookStats summarizes the stored book.
type BookStats struct {
	Positions int `json:"positions"`
	MaxDepth  int `json:"max_depth"`
}
