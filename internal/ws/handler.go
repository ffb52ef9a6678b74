// Package ws serves book lookups over a websocket, so a client streaming
// analysis can resolve many positions without per-request HTTP overhead.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/rvedder/gambit/internal/repository"
	"github.com/rvedder/gambit/internal/services"
)

const lookupTimeout = 2 * time.Second

// Handler answers JSON envelope messages on one websocket connection. Every
// incoming message names an event and carries an ID the reply echoes, so
// the client can match responses to in-flight requests.
type Handler struct {
	services *services.Services
	conn     *websocket.Conn
}

func NewHandler(conn *websocket.Conn, services *services.Services) *Handler {
	return &Handler{services: services, conn: conn}
}

// Handle runs the read/dispatch/reply loop until the connection fails.
func (h *Handler) Handle() error {
	for {
		incoming, err := h.read()
		if err != nil {
			return err
		}

		outgoing, err := h.dispatch(incoming)
		if err != nil {
			return err
		}

		if err := h.write(outgoing); err != nil {
			return err
		}
	}
}

func (h *Handler) read() (*Incoming, error) {
	msgType, raw, err := h.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read websocket message: %w", err)
	}

	slog.Debug("Websocket message received", "type", msgType, "msg", string(raw))

	if msgType != websocket.TextMessage {
		return nil, fmt.Errorf("unexpected websocket message type %d", msgType)
	}

	var incoming Incoming
	if err := json.Unmarshal(raw, &incoming); err != nil {
		return nil, fmt.Errorf("failed to unmarshal websocket message: %w", err)
	}

	return &incoming, nil
}

func (h *Handler) write(outgoing *Outgoing) error {
	raw, err := json.Marshal(outgoing)
	if err != nil {
		return fmt.Errorf("failed to marshal websocket reply: %w", err)
	}

	slog.Debug("Websocket message sent", "msg", string(raw))

	if err := h.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("failed to write websocket message: %w", err)
	}

	return nil
}

func (h *Handler) dispatch(incoming *Incoming) (*Outgoing, error) {
	switch incoming.Event {
	case "":
		return nil, errors.New("message carries no event")
	case "evaluation_request":
		return h.lookupEvaluations(incoming)
	default:
		return nil, fmt.Errorf("unknown event %q", incoming.Event)
	}
}

func (h *Handler) lookupEvaluations(incoming *Incoming) (*Outgoing, error) {
	var request EvaluationRequest
	if err := json.Unmarshal(incoming.Data, &request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evaluation request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	repo := repository.NewEvaluationRepositoryFromServices(h.services)

	evaluations, err := repo.LookupPositions(ctx, request.FENs)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup positions: %w", err)
	}

	return &Outgoing{
		ID:   incoming.ID,
		Data: EvaluationResponse{Evaluations: evaluations},
	}, nil
}
