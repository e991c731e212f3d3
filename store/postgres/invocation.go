package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/id"
	"github.com/stevearc/eat-your-vegetables/task"
)

const invocationColumns = `
	id, name, queue, payload, state, max_retries, retry_count,
	last_error, worker_id, run_at, started_at, completed_at,
	timeout_ns, created_at, updated_at`

// Enqueue persists a new invocation in pending state.
func (s *Store) Enqueue(ctx context.Context, inv *task.Invocation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO nom_invocations (
			id, name, queue, payload, state, max_retries, retry_count,
			last_error, worker_id, run_at, started_at, completed_at,
			timeout_ns, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15
		)`,
		inv.ID.String(), inv.Name, inv.Queue, inv.Payload, string(inv.State),
		inv.MaxRetries, inv.RetryCount,
		inv.LastError, workerIDString(inv.WorkerID),
		inv.RunAt, inv.StartedAt, inv.CompletedAt,
		inv.Timeout.Nanoseconds(), inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return vegetables.ErrInvocationExists
		}
		return fmt.Errorf("vegetables/postgres: enqueue invocation: %w", err)
	}
	return nil
}

// Dequeue atomically claims up to limit due invocations from the given
// queues using FOR UPDATE SKIP LOCKED.
func (s *Store) Dequeue(ctx context.Context, queues []string, limit int) ([]*task.Invocation, error) {
	rows, err := s.pool.Query(ctx, `
		WITH claimed AS (
			UPDATE nom_invocations
			SET state = 'running', started_at = NOW(), updated_at = NOW()
			WHERE id IN (
				SELECT id FROM nom_invocations
				WHERE state IN ('pending', 'retrying')
				  AND queue = ANY($1)
				  AND run_at <= NOW()
				ORDER BY run_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $2
			)
			RETURNING `+invocationColumns+`
		)
		SELECT * FROM claimed ORDER BY run_at ASC`,
		queues, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("vegetables/postgres: dequeue invocations: %w", err)
	}
	defer rows.Close()

	return collectInvocations(rows)
}

// Get retrieves an invocation by ID.
func (s *Store) Get(ctx context.Context, taskID id.TaskID) (*task.Invocation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+invocationColumns+` FROM nom_invocations WHERE id = $1`,
		taskID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("vegetables/postgres: get invocation: %w", err)
	}
	defer rows.Close()

	invs, err := collectInvocations(rows)
	if err != nil {
		return nil, err
	}
	if len(invs) == 0 {
		return nil, vegetables.ErrInvocationNotFound
	}
	return invs[0], nil
}

// Update persists changes to an existing invocation.
func (s *Store) Update(ctx context.Context, inv *task.Invocation) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE nom_invocations SET
			name = $2, queue = $3, payload = $4, state = $5,
			max_retries = $6, retry_count = $7, last_error = $8,
			worker_id = $9, run_at = $10, started_at = $11,
			completed_at = $12, timeout_ns = $13, updated_at = NOW()
		WHERE id = $1`,
		inv.ID.String(), inv.Name, inv.Queue, inv.Payload, string(inv.State),
		inv.MaxRetries, inv.RetryCount, inv.LastError,
		workerIDString(inv.WorkerID), inv.RunAt, inv.StartedAt,
		inv.CompletedAt, inv.Timeout.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("vegetables/postgres: update invocation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vegetables.ErrInvocationNotFound
	}
	return nil
}

// Delete removes an invocation by ID.
func (s *Store) Delete(ctx context.Context, taskID id.TaskID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM nom_invocations WHERE id = $1`, taskID.String())
	if err != nil {
		return fmt.Errorf("vegetables/postgres: delete invocation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vegetables.ErrInvocationNotFound
	}
	return nil
}

// ListByState returns invocations matching the given state.
func (s *Store) ListByState(ctx context.Context, state task.State, opts task.ListOpts) ([]*task.Invocation, error) {
	query := `SELECT ` + invocationColumns + ` FROM nom_invocations WHERE state = $1`
	args := []any{string(state)}
	if opts.Queue != "" {
		query += ` AND queue = $2`
		args = append(args, opts.Queue)
	}
	query += ` ORDER BY created_at ASC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vegetables/postgres: list invocations: %w", err)
	}
	defer rows.Close()

	return collectInvocations(rows)
}

// Count returns the number of invocations matching the given options.
func (s *Store) Count(ctx context.Context, opts task.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM nom_invocations WHERE TRUE`
	args := []any{}
	if opts.Queue != "" {
		args = append(args, opts.Queue)
		query += fmt.Sprintf(` AND queue = $%d`, len(args))
	}
	if opts.State != "" {
		args = append(args, string(opts.State))
		query += fmt.Sprintf(` AND state = $%d`, len(args))
	}

	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("vegetables/postgres: count invocations: %w", err)
	}
	return n, nil
}

// Queues returns the distinct queue names present in the table.
func (s *Store) Queues(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT queue FROM nom_invocations ORDER BY queue`)
	if err != nil {
		return nil, fmt.Errorf("vegetables/postgres: queues: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("vegetables/postgres: scan queue: %w", err)
		}
		names = append(names, q)
	}
	return names, rows.Err()
}

func collectInvocations(rows pgx.Rows) ([]*task.Invocation, error) {
	var invs []*task.Invocation
	for rows.Next() {
		var (
			inv       task.Invocation
			rawID     string
			rawWorker string
			state     string
			timeoutNs int64
		)
		err := rows.Scan(
			&rawID, &inv.Name, &inv.Queue, &inv.Payload, &state,
			&inv.MaxRetries, &inv.RetryCount,
			&inv.LastError, &rawWorker, &inv.RunAt, &inv.StartedAt,
			&inv.CompletedAt, &timeoutNs, &inv.CreatedAt, &inv.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("vegetables/postgres: scan invocation: %w", err)
		}
		inv.ID, err = id.ParseTaskID(rawID)
		if err != nil {
			return nil, fmt.Errorf("vegetables/postgres: parse invocation id: %w", err)
		}
		if rawWorker != "" {
			inv.WorkerID, err = id.ParseWorkerID(rawWorker)
			if err != nil {
				return nil, fmt.Errorf("vegetables/postgres: parse worker id: %w", err)
			}
		}
		inv.State = task.State(state)
		inv.Timeout = time.Duration(timeoutNs)
		invs = append(invs, &inv)
	}
	return invs, rows.Err()
}

// workerIDString renders a possibly-unset worker ID as a TEXT column value.
func workerIDString(w id.WorkerID) string {
	if w.IsNil() {
		return ""
	}
	return w.String()
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
