package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/club-registration/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 10
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Migrate applies pending migrations from dir
func (r *PostgresRepository) Migrate(ctx context.Context, dir string) error {
	return RunMigrations(ctx, r.pool, dir)
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// ListSubmissions returns every stored submission, oldest first
func (r *PostgresRepository) ListSubmissions(ctx context.Context) ([]*models.Submission, error) {
	query := `
		SELECT student_name, grade, parent_name, email, phone, rankings, submitted_at
		FROM club_submissions
		ORDER BY submitted_at ASC, partition_key, row_key
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	submissions := make([]*models.Submission, 0)
	for rows.Next() {
		var sub models.Submission
		var grade int
		var phone sql.NullString
		var rankingsJSON []byte

		if err := rows.Scan(
			&sub.StudentName,
			&grade,
			&sub.ParentName,
			&sub.Email,
			&phone,
			&rankingsJSON,
			&sub.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}

		sub.Grade = models.Grade(grade)
		sub.Phone = phone.String
		if err := json.Unmarshal(rankingsJSON, &sub.Rankings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rankings: %w", err)
		}

		submissions = append(submissions, &sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submissions: %w", err)
	}

	return submissions, nil
}

// ReplaceSubmission deletes any submission under the same key and inserts sub
func (r *PostgresRepository) ReplaceSubmission(ctx context.Context, sub *models.Submission) error {
	rankingsJSON, err := json.Marshal(sub.Rankings)
	if err != nil {
		return fmt.Errorf("failed to marshal rankings: %w", err)
	}

	key := sub.Key()

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM club_submissions WHERE partition_key = $1 AND row_key = $2`,
			key.PartitionKey, key.RowKey,
		); err != nil {
			return fmt.Errorf("failed to delete previous submission: %w", err)
		}

		query := `
			INSERT INTO club_submissions (partition_key, row_key, student_name, grade, parent_name, email, phone, rankings, submitted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		if _, err := tx.Exec(ctx, query,
			key.PartitionKey,
			key.RowKey,
			sub.StudentName,
			int(sub.Grade),
			sub.ParentName,
			sub.Email,
			nullString(sub.Phone),
			rankingsJSON,
			sub.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to create submission: %w", err)
		}

		return nil
	})
}

// DeleteSubmission removes a submission by key
func (r *PostgresRepository) DeleteSubmission(ctx context.Context, key models.SubmissionKey) error {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM club_submissions WHERE partition_key = $1 AND row_key = $2`,
		key.PartitionKey, key.RowKey,
	)
	if err != nil {
		return fmt.Errorf("failed to delete submission: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ClearSubmissions removes every submission
func (r *PostgresRepository) ClearSubmissions(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM club_submissions`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear submissions: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListAssignments returns rosters in the order they were written
func (r *PostgresRepository) ListAssignments(ctx context.Context) ([]*models.Assignment, error) {
	query := `
		SELECT club_id, club_name, capacity, students, run_id, last_updated
		FROM club_assignments
		ORDER BY position, club_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]*models.Assignment, 0)
	for rows.Next() {
		var a models.Assignment
		var runID sql.NullString
		var studentsJSON []byte

		if err := rows.Scan(&a.ClubID, &a.ClubName, &a.Capacity, &studentsJSON, &runID, &a.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}

		a.RunID = runID.String
		if err := unmarshalStudents(studentsJSON, &a.Students); err != nil {
			return nil, err
		}

		assignments = append(assignments, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignments: %w", err)
	}

	return assignments, nil
}

// ListWaitlists returns waitlists in the order they were written
func (r *PostgresRepository) ListWaitlists(ctx context.Context) ([]*models.Waitlist, error) {
	query := `
		SELECT club_id, club_name, students, run_id, last_updated
		FROM club_waitlists
		ORDER BY position, club_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlists: %w", err)
	}
	defer rows.Close()

	waitlists := make([]*models.Waitlist, 0)
	for rows.Next() {
		var w models.Waitlist
		var runID sql.NullString
		var studentsJSON []byte

		if err := rows.Scan(&w.ClubID, &w.ClubName, &studentsJSON, &runID, &w.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan waitlist: %w", err)
		}

		w.RunID = runID.String
		if err := unmarshalStudents(studentsJSON, &w.Students); err != nil {
			return nil, err
		}

		waitlists = append(waitlists, &w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate waitlists: %w", err)
	}

	return waitlists, nil
}

// ReplaceResults swaps rosters, waitlists and the run state in one transaction
func (r *PostgresRepository) ReplaceResults(ctx context.Context, assignments []*models.Assignment, waitlists []*models.Waitlist, state models.RunState) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := replaceAssignments(ctx, tx, assignments); err != nil {
			return err
		}
		if err := replaceWaitlists(ctx, tx, waitlists); err != nil {
			return err
		}
		return saveRunState(ctx, tx, state)
	})
}

// ReplaceAssignments swaps the roster collection, leaving waitlists untouched
func (r *PostgresRepository) ReplaceAssignments(ctx context.Context, assignments []*models.Assignment, state models.RunState) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := replaceAssignments(ctx, tx, assignments); err != nil {
			return err
		}
		return saveRunState(ctx, tx, state)
	})
}

// GetRunState loads the single run state row
func (r *PostgresRepository) GetRunState(ctx context.Context) (models.RunState, error) {
	query := `
		SELECT run_id, digest, manual, updated_at
		FROM club_run_state
		WHERE id = 1
	`

	var state models.RunState
	var runID sql.NullString
	err := r.pool.QueryRow(ctx, query).Scan(&runID, &state.Digest, &state.Manual, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RunState{}, nil
	}
	if err != nil {
		return models.RunState{}, fmt.Errorf("failed to get run state: %w", err)
	}

	state.RunID = runID.String
	return state, nil
}

// SaveRunState upserts the run state row
func (r *PostgresRepository) SaveRunState(ctx context.Context, state models.RunState) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return saveRunState(ctx, tx, state)
	})
}

// ClearAssignments removes every roster
func (r *PostgresRepository) ClearAssignments(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM club_assignments`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear assignments: %w", err)
	}
	return result.RowsAffected(), nil
}

// ClearWaitlists removes every waitlist
func (r *PostgresRepository) ClearWaitlists(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM club_waitlists`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear waitlists: %w", err)
	}
	return result.RowsAffected(), nil
}

func replaceAssignments(ctx context.Context, tx pgx.Tx, assignments []*models.Assignment) error {
	if _, err := tx.Exec(ctx, `DELETE FROM club_assignments`); err != nil {
		return fmt.Errorf("failed to clear assignments: %w", err)
	}

	query := `
		INSERT INTO club_assignments (club_id, club_name, capacity, students, position, run_id, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i, a := range assignments {
		studentsJSON, err := marshalStudents(a.Students)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query,
			a.ClubID, a.ClubName, a.Capacity, studentsJSON, i, nullString(a.RunID), a.LastUpdated,
		); err != nil {
			return fmt.Errorf("failed to write assignment %s: %w", a.ClubID, err)
		}
	}

	return nil
}

func replaceWaitlists(ctx context.Context, tx pgx.Tx, waitlists []*models.Waitlist) error {
	if _, err := tx.Exec(ctx, `DELETE FROM club_waitlists`); err != nil {
		return fmt.Errorf("failed to clear waitlists: %w", err)
	}

	query := `
		INSERT INTO club_waitlists (club_id, club_name, students, position, run_id, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for i, w := range waitlists {
		studentsJSON, err := marshalStudents(w.Students)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query,
			w.ClubID, w.ClubName, studentsJSON, i, nullString(w.RunID), w.LastUpdated,
		); err != nil {
			return fmt.Errorf("failed to write waitlist %s: %w", w.ClubID, err)
		}
	}

	return nil
}

func saveRunState(ctx context.Context, tx pgx.Tx, state models.RunState) error {
	query := `
		INSERT INTO club_run_state (id, run_id, digest, manual, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET run_id = EXCLUDED.run_id,
		    digest = EXCLUDED.digest,
		    manual = EXCLUDED.manual,
		    updated_at = EXCLUDED.updated_at
	`
	if _, err := tx.Exec(ctx, query, nullString(state.RunID), state.Digest, state.Manual, state.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}
	return nil
}

func marshalStudents(students []models.AssignedStudent) ([]byte, error) {
	if students == nil {
		students = []models.AssignedStudent{}
	}
	data, err := json.Marshal(students)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal students: %w", err)
	}
	return data, nil
}

func unmarshalStudents(data []byte, out *[]models.AssignedStudent) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal students: %w", err)
	}
	if *out == nil {
		*out = []models.AssignedStudent{}
	}
	return nil
}

// Helper functions for nullable fields
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
