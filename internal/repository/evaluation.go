package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/rvedder/gambit/internal/models"
	"github.com/rvedder/gambit/internal/services"
)

const (
	bookStatsKey    = "book_stats"
	evalCachePrefix = "evaluation:"
	evalCacheTTL    = time.Hour
)

// EvaluationRepository handles database operations for evaluations.
type EvaluationRepository struct {
	services *services.Services
}

// NewEvaluationRepository creates a new EvaluationRepository.
func NewEvaluationRepository(c *fiber.Ctx) *EvaluationRepository {
	services := c.Locals("services").(*services.Services) //nolint: errcheck

	return &EvaluationRepository{
		services: services,
	}
}

func NewEvaluationRepositoryFromServices(services *services.Services) *EvaluationRepository {
	return &EvaluationRepository{
		services: services,
	}
}

// evaluationRow maps the evaluations table. PV is stored as a text array.
type evaluationRow struct {
	FEN      string         `db:"fen"`
	Engine   string         `db:"engine"`
	Depth    int            `db:"depth"`
	ScoreCP  int            `db:"score_cp"`
	Mate     int            `db:"mate"`
	BestMove string         `db:"best_move"`
	PV       pq.StringArray `db:"pv"`
}

func (row evaluationRow) toModel() models.Evaluation {
	return models.Evaluation{
		FEN:      row.FEN,
		Engine:   row.Engine,
		Depth:    row.Depth,
		ScoreCP:  row.ScoreCP,
		Mate:     row.Mate,
		BestMove: row.BestMove,
		PV:       row.PV,
	}
}

// SubmitEvaluations stores a batch of evaluations. An existing row is only
// replaced by a deeper evaluation of the same position.
func (repo *EvaluationRepository) SubmitEvaluations(ctx context.Context, payload models.EvaluationsPayload) error {
	pgConn := repo.services.Postgres

	if len(payload.Evaluations) == 0 {
		return nil
	}

	// Create a single VALUES clause with all the data
	valuesClause := ""
	params := make([]interface{}, 0, len(payload.Evaluations)*7) //nolint:mnd

	fens := make([]string, len(payload.Evaluations))
	for i, eval := range payload.Evaluations {
		fens[i] = eval.FEN
	}

	for i, eval := range payload.Evaluations {
		if i > 0 {
			valuesClause += ", "
		}
		valuesClause += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			i*7+2, i*7+3, i*7+4, i*7+5, i*7+6, i*7+7, i*7+8) //nolint:mnd

		params = append(params,
			eval.FEN,
			eval.Engine,
			eval.Depth,
			eval.ScoreCP,
			eval.Mate,
			eval.BestMove,
			pq.Array(eval.PV),
		)
	}

	// Add positions array as first parameter
	params = append([]interface{}{pq.Array(fens)}, params...)

	query := fmt.Sprintf(`
		WITH current_depths AS (
			SELECT fen, depth
			FROM evaluations
			WHERE fen = ANY($1)
		)
		INSERT INTO evaluations (fen, engine, depth, score_cp, mate, best_move, pv)
		VALUES %s
		ON CONFLICT (fen)
		DO UPDATE SET
			engine = EXCLUDED.engine,
			depth = EXCLUDED.depth,
			score_cp = EXCLUDED.score_cp,
			mate = EXCLUDED.mate,
			best_move = EXCLUDED.best_move,
			pv = EXCLUDED.pv
		WHERE EXCLUDED.depth > evaluations.depth
		RETURNING
			(SELECT depth FROM current_depths WHERE fen = evaluations.fen) as old_depth,
			depth as new_depth;
	`, valuesClause)

	rows, err := pgConn.QueryxContext(ctx, query, params...)
	if err != nil {
		return fmt.Errorf("error submitting evaluations: %w", err)
	}
	defer rows.Close()

	redisChanges := make(map[string]int)

	for rows.Next() {
		var oldDepth sql.NullInt64
		var newDepth int
		if err = rows.Scan(&oldDepth, &newDepth); err != nil {
			return fmt.Errorf("error scanning evaluation: %w", err)
		}

		if oldDepth.Valid {
			redisChanges[strconv.FormatInt(oldDepth.Int64, 10)]--
		}
		redisChanges[strconv.Itoa(newDepth)]++
	}

	redisConn := repo.services.Redis

	// Update stats and invalidate cached lookups in a single pipeline
	pipe := redisConn.Pipeline()
	for key, count := range redisChanges {
		pipe.HIncrBy(ctx, bookStatsKey, key, int64(count))
	}
	for _, fen := range fens {
		pipe.Del(ctx, evalCachePrefix+fen)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("error updating Redis stats: %w", err)
	}

	return nil
}

// LookupPositions looks up evaluations for given positions. Recently looked
// up positions are served from Redis instead of Postgres.
func (repo *EvaluationRepository) LookupPositions(ctx context.Context, fens []string) ([]models.Evaluation, error) {
	if len(fens) == 0 {
		return []models.Evaluation{}, nil
	}

	evaluations, missing, err := repo.lookupCached(ctx, fens)
	if err != nil {
		return nil, err
	}

	if len(missing) == 0 {
		return evaluations, nil
	}

	pgConn := repo.services.Postgres

	query := `
		SELECT fen, engine, depth, score_cp, mate, best_move, pv
		FROM evaluations
		WHERE fen = ANY($1)
	`

	rows, err := pgConn.QueryxContext(ctx, query, pq.Array(missing))
	if err != nil {
		return nil, fmt.Errorf("error looking up positions: %w", err)
	}
	defer rows.Close()

	fetched := make([]models.Evaluation, 0, len(missing))

	for rows.Next() {
		var row evaluationRow
		if err = rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("error scanning evaluations: %w", err)
		}
		fetched = append(fetched, row.toModel())
	}

	if err = repo.cacheEvaluations(ctx, fetched); err != nil {
		return nil, err
	}

	return append(evaluations, fetched...), nil
}

// lookupCached serves what it can from Redis and reports the rest as missing.
func (repo *EvaluationRepository) lookupCached(ctx context.Context, fens []string) ([]models.Evaluation, []string, error) {
	redisConn := repo.services.Redis

	keys := make([]string, len(fens))
	for i, fen := range fens {
		keys[i] = evalCachePrefix + fen
	}

	cached, err := redisConn.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("error reading evaluation cache: %w", err)
	}

	evaluations := make([]models.Evaluation, 0, len(fens))
	missing := make([]string, 0, len(fens))

	for i, value := range cached {
		jsonData, ok := value.(string)
		if !ok {
			missing = append(missing, fens[i])
			continue
		}

		var evaluation models.Evaluation
		if err := json.Unmarshal([]byte(jsonData), &evaluation); err != nil {
			missing = append(missing, fens[i])
			continue
		}

		evaluations = append(evaluations, evaluation)
	}

	return evaluations, missing, nil
}

func (repo *EvaluationRepository) cacheEvaluations(ctx context.Context, evaluations []models.Evaluation) error {
	if len(evaluations) == 0 {
		return nil
	}

	redisConn := repo.services.Redis

	pipe := redisConn.Pipeline()
	for _, evaluation := range evaluations {
		jsonData, err := json.Marshal(evaluation)
		if err != nil {
			return fmt.Errorf("error marshaling evaluation: %w", err)
		}
		pipe.Set(ctx, evalCachePrefix+evaluation.FEN, jsonData, evalCacheTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("error caching evaluations: %w", err)
	}

	return nil
}

// buildInitialBookStats seeds the Redis stats hash from Postgres. The hash
// keeps a position count per depth.
func (repo *EvaluationRepository) buildInitialBookStats(ctx context.Context) error {
	pgConn := repo.services.Postgres
	redisConn := repo.services.Redis

	query := `
		SELECT depth, count(*)
		FROM evaluations
		GROUP BY depth
	`

	type statRow struct {
		Depth int `db:"depth"`
		Count int `db:"count"`
	}

	var stats []statRow
	if err := pgConn.SelectContext(ctx, &stats, query); err != nil {
		return fmt.Errorf("error loading book stats: %w", err)
	}

	statsMap := make(map[string]interface{})
	for _, stat := range stats {
		statsMap[strconv.Itoa(stat.Depth)] = stat.Count
	}

	if len(statsMap) == 0 {
		return nil
	}

	if err := redisConn.HSet(ctx, bookStatsKey, statsMap).Err(); err != nil {
		return fmt.Errorf("error storing book stats in Redis: %w", err)
	}

	return nil
}

// GetBookStats returns statistics about positions in the database.
func (repo *EvaluationRepository) GetBookStats(ctx context.Context) (models.BookStats, error) {
	redisConn := repo.services.Redis

	stats, err := redisConn.HGetAll(ctx, bookStatsKey).Result()
	if err != nil && err != redis.Nil {
		return models.BookStats{}, fmt.Errorf("error getting book stats from Redis: %w", err)
	}

	if len(stats) == 0 {
		if err = repo.buildInitialBookStats(ctx); err != nil {
			return models.BookStats{}, fmt.Errorf("error building initial book stats: %w", err)
		}

		// Try reading from Redis again after building stats
		stats, err = redisConn.HGetAll(ctx, bookStatsKey).Result()
		if err != nil {
			return models.BookStats{}, fmt.Errorf("error getting book stats from Redis after build: %w", err)
		}
	}

	var bookStats models.BookStats

	for key, value := range stats {
		depth, err := strconv.Atoi(key)
		if err != nil {
			return models.BookStats{}, fmt.Errorf("error parsing book stats key: %w", err)
		}

		count, err := strconv.Atoi(value)
		if err != nil {
			return models.BookStats{}, fmt.Errorf("error parsing book stats value: %w", err)
		}

		bookStats.Positions += count
		if depth > bookStats.MaxDepth && count > 0 {
			bookStats.MaxDepth = depth
		}
	}

	return bookStats, nil
}
