package questionbank

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PGBank reads duel questions from the duel_questions table. Content
// management for that table belongs to the content subsystem; this side only
// selects.
type PGBank struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPGBank creates a Postgres-backed question provider.
func NewPGBank(pool *pgxpool.Pool, logger zerolog.Logger) *PGBank {
	return &PGBank{
		pool:   pool,
		logger: logger.With().Str("component", "questionbank").Logger(),
	}
}

// QuestionsForDuel selects a random question sequence for one duel.
func (b *PGBank) QuestionsForDuel(ctx context.Context, mode string, count int) ([]Question, error) {
	if count <= 0 {
		return nil, fmt.Errorf("question count must be positive, got %d", count)
	}

	rows, err := b.pool.Query(ctx, `
		SELECT id, prompt, COALESCE(code_snippet, ''), options, correct_index, time_limit_seconds
		FROM duel_questions
		WHERE mode = $1 OR $1 = ''
		ORDER BY random()
		LIMIT $2`,
		mode, count)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var (
			q       Question
			seconds int
		)
		if err := rows.Scan(&q.ID, &q.Prompt, &q.Code, &q.Options, &q.Correct, &seconds); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.TimeLimit = time.Duration(seconds) * time.Second
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no questions available for mode %q", mode)
	}

	b.logger.Debug().Str("mode", mode).Int("count", len(out)).Msg("question sequence drawn")
	return out, nil
}
