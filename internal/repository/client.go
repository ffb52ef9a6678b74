package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rvedder/gambit/internal/models"
	"github.com/rvedder/gambit/internal/services"
)

const (
	ClientsKey = "clients"
	ClientsTTL = 300 * time.Second
)

type ClientRepository struct {
	services *services.Services
}

func NewClientRepository(c *fiber.Ctx) *ClientRepository {
	return &ClientRepository{
		services: c.Locals("services").(*services.Services),
	}
}

func NewClientRepositoryFromServices(services *services.Services) *ClientRepository {
	return &ClientRepository{
		services: services,
	}
}

// RegisterClient registers a new client and returns its ID
func (repo *ClientRepository) RegisterClient(ctx context.Context, req models.RegisterRequest) (models.RegisterResponse, error) {
	clientID := uuid.New().String()

	clientStats := models.ClientStats{
		ID:                clientID,
		Hostname:          req.Hostname,
		EngineName:        req.EngineName,
		AnalysesSubmitted: 0,
		LastActive:        time.Now(),
	}

	if err := repo.storeClient(ctx, clientStats); err != nil {
		return models.RegisterResponse{}, err
	}

	return models.RegisterResponse{ClientID: clientID}, nil
}

var ErrClientNotFound = errors.New("client not found")

// getClient loads and parses a client's stats from Redis.
func (repo *ClientRepository) getClient(ctx context.Context, clientID string) (models.ClientStats, error) {
	redisConn := repo.services.Redis

	jsonData, err := redisConn.HGet(ctx, ClientsKey, clientID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return models.ClientStats{}, ErrClientNotFound
		}
		return models.ClientStats{}, fmt.Errorf("error getting client: %w", err)
	}

	var clientStats models.ClientStats
	if err = json.Unmarshal(jsonData, &clientStats); err != nil {
		return models.ClientStats{}, fmt.Errorf("error unmarshaling client stats: %w", err)
	}

	return clientStats, nil
}

// storeClient writes a client's stats to Redis and resets the registry TTL.
func (repo *ClientRepository) storeClient(ctx context.Context, clientStats models.ClientStats) error {
	redisConn := repo.services.Redis

	jsonData, err := json.Marshal(clientStats)
	if err != nil {
		return fmt.Errorf("error marshaling client stats: %w", err)
	}

	if err = redisConn.HSet(ctx, ClientsKey, clientStats.ID, jsonData).Err(); err != nil {
		return fmt.Errorf("error storing client: %w", err)
	}

	if err = redisConn.Expire(ctx, ClientsKey, ClientsTTL).Err(); err != nil {
		return fmt.Errorf("error setting TTL: %w", err)
	}

	return nil
}

// UpdateHeartbeat updates the last active timestamp for a client
func (repo *ClientRepository) UpdateHeartbeat(ctx context.Context, clientID string) error {
	clientStats, err := repo.getClient(ctx, clientID)
	if err != nil {
		return err
	}

	clientStats.LastActive = time.Now()

	return repo.storeClient(ctx, clientStats)
}

// IncrementSubmitted credits a client with submitted analyses.
func (repo *ClientRepository) IncrementSubmitted(ctx context.Context, clientID string, count int) error {
	clientStats, err := repo.getClient(ctx, clientID)
	if err != nil {
		return err
	}

	clientStats.AnalysesSubmitted += count
	clientStats.LastActive = time.Now()

	return repo.storeClient(ctx, clientStats)
}

// GetClientStats retrieves statistics for a specific client
func (repo *ClientRepository) GetClientStats(ctx context.Context, clientID string) (models.ClientStats, error) {
	return repo.getClient(ctx, clientID)
}

// GetClientStatsList retrieves statistics for all clients
func (repo *ClientRepository) GetClientStatsList(ctx context.Context) (models.StatsResponse, error) {
	redisConn := repo.services.Redis

	clients, err := redisConn.HGetAll(ctx, ClientsKey).Result()
	if err != nil {
		return models.StatsResponse{}, fmt.Errorf("error getting clients: %w", err)
	}

	stats := make([]models.ClientStats, 0, len(clients))
	for _, jsonData := range clients {
		var clientStats models.ClientStats
		if err := json.Unmarshal([]byte(jsonData), &clientStats); err != nil {
			return models.StatsResponse{}, fmt.Errorf("error unmarshaling client stats: %w", err)
		}
		stats = append(stats, clientStats)
	}

	// Sort such that the most recently active clients are first
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].LastActive.After(stats[j].LastActive)
	})

	return models.StatsResponse{
		Clients: stats,
	}, nil
}
