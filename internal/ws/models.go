package ws

import (
	"encoding/json"

	"github.com/rvedder/gambit/internal/models"
)

type Incoming struct {
	Event string          `json:"event"`
	ID    int             `json:"id"`
	Data  json.RawMessage `json:"data"`
}

type Outgoing struct {
	ID   int `json:"id"`
	Data any `json:"data"`
}

type EvaluationRequest struct {
	FENs []string `json:"fens"`
}

type EvaluationResponse struct {
	Evaluations []models.Evaluation `json:"evaluations"`
}
