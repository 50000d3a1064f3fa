package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODULE PROGRESS ENTRY REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProgressEntryRepository implements enrollment.ProgressEntryRepository.
type ProgressEntryRepository struct {
	conn *Connection
}

// NewProgressEntryRepository creates a new progress entry repository.
func NewProgressEntryRepository(conn *Connection) *ProgressEntryRepository {
	return &ProgressEntryRepository{conn: conn}
}

// Compile-time check that ProgressEntryRepository implements enrollment.ProgressEntryRepository.
var _ enrollment.ProgressEntryRepository = (*ProgressEntryRepository)(nil)

const progressEntryColumns = `
	id, student_id, course_id, module_id, status, completed_at,
	last_accessed_at, time_spent_minutes, notes, created_at, updated_at
`

// Get returns the entry for (student, course, module).
func (r *ProgressEntryRepository) Get(ctx context.Context, studentID, courseID, moduleID string) (*enrollment.ProgressEntry, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + progressEntryColumns + `
		FROM module_progress_entries
		WHERE student_id = $1 AND course_id = $2 AND module_id = $3`

	return scanProgressEntry(r.conn.QueryRow(ctx, query, studentID, courseID, moduleID))
}

// Upsert inserts or updates the entry keyed by (student, course, module).
// The stored id and created_at win over the incoming ones on conflict.
func (r *ProgressEntryRepository) Upsert(ctx context.Context, p *enrollment.ProgressEntry) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO module_progress_entries (` + progressEntryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (student_id, course_id, module_id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			last_accessed_at = EXCLUDED.last_accessed_at,
			time_spent_minutes = EXCLUDED.time_spent_minutes,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err := r.conn.QueryRow(ctx, query,
		p.ID, p.StudentID, p.CourseID, p.ModuleID, string(p.Status), p.CompletedAt,
		p.LastAccessedAt, p.TimeSpentMinutes, p.Notes, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrCourseNotFound
		}
		return fmt.Errorf("failed to upsert progress entry: %w", err)
	}

	return nil
}

// ListByStudentAndCourse returns every entry of a student in a course.
func (r *ProgressEntryRepository) ListByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]*enrollment.ProgressEntry, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + progressEntryColumns + `
		FROM module_progress_entries
		WHERE student_id = $1 AND course_id = $2
		ORDER BY module_id`

	rows, err := r.conn.Query(ctx, query, studentID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress entries: %w", err)
	}
	defer rows.Close()

	var entries []*enrollment.ProgressEntry
	for rows.Next() {
		p, err := scanProgressEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, p)
	}

	return entries, rows.Err()
}

func scanProgressEntry(row pgx.Row) (*enrollment.ProgressEntry, error) {
	var (
		p      enrollment.ProgressEntry
		status string
	)

	err := row.Scan(
		&p.ID, &p.StudentID, &p.CourseID, &p.ModuleID, &status, &p.CompletedAt,
		&p.LastAccessedAt, &p.TimeSpentMinutes, &p.Notes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan progress entry: %w", err)
	}

	p.Status = enrollment.EntryStatus(status)
	p.CompletedAt = utcPtr(p.CompletedAt)
	return &p, nil
}
