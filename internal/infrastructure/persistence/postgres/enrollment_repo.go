package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements enrollment.Repository.
type EnrollmentRepository struct {
	conn *Connection
}

// NewEnrollmentRepository creates a new enrollment repository.
func NewEnrollmentRepository(conn *Connection) *EnrollmentRepository {
	return &EnrollmentRepository{conn: conn}
}

// Compile-time check that EnrollmentRepository implements enrollment.Repository.
var _ enrollment.Repository = (*EnrollmentRepository)(nil)

const enrollmentColumns = `
	id, student_id, course_id, completion_percentage, status,
	completed_module_ids, completed_exercises, completed_activities, quiz_results,
	certificate_id, certificate_issued_at,
	last_accessed, enrolled_at, created_at, updated_at
`

// ledgerJSON holds the encoded JSONB ledger columns.
type ledgerJSON struct {
	modules, exercises, activities, quizzes []byte
}

func encodeLedger(e *enrollment.Enrollment) (ledgerJSON, error) {
	var (
		l   ledgerJSON
		err error
	)
	if l.modules, err = marshalList(e.CompletedModuleIDs); err != nil {
		return l, fmt.Errorf("failed to marshal completed modules: %w", err)
	}
	if l.exercises, err = marshalList(e.CompletedExercises); err != nil {
		return l, fmt.Errorf("failed to marshal completed exercises: %w", err)
	}
	if l.activities, err = marshalList(e.CompletedActivities); err != nil {
		return l, fmt.Errorf("failed to marshal completed activities: %w", err)
	}
	if l.quizzes, err = marshalList(e.QuizResults); err != nil {
		return l, fmt.Errorf("failed to marshal quiz results: %w", err)
	}
	return l, nil
}

// Create inserts a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	ledger, err := encodeLedger(e)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO enrollments (` + enrollmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.conn.Exec(ctx, query,
		e.ID, e.StudentID, e.CourseID, e.CompletionPercentage, string(e.Status),
		ledger.modules, ledger.exercises, ledger.activities, ledger.quizzes,
		nullableString(e.CertificateID), e.CertificateIssuedAt,
		e.LastAccessed, e.EnrolledAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrEnrollmentExists
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrCourseNotFound
		}
		return fmt.Errorf("failed to create enrollment: %w", err)
	}

	return nil
}

// GetByID retrieves an enrollment by its ID.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	return scanEnrollment(r.conn.QueryRow(ctx, query, id), shared.ErrEnrollmentNotFound)
}

// FindByStudentAndCourse retrieves the enrollment for a (student, course) pair.
func (r *EnrollmentRepository) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*enrollment.Enrollment, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 AND course_id = $2`
	return scanEnrollment(r.conn.QueryRow(ctx, query, studentID, courseID), shared.ErrEnrollmentNotFound)
}

// FindByCertificateID retrieves the enrollment holding a certificate.
func (r *EnrollmentRepository) FindByCertificateID(ctx context.Context, certificateID string) (*enrollment.Enrollment, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE certificate_id = $1`
	return scanEnrollment(r.conn.QueryRow(ctx, query, certificateID), shared.ErrCertificateNotFound)
}

// Save writes the mutable fields back.
//
// Certificate columns are write-once: a stored certificate survives any
// later save, and the stored values are copied back into e.
func (r *EnrollmentRepository) Save(ctx context.Context, e *enrollment.Enrollment) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	ledger, err := encodeLedger(e)
	if err != nil {
		return err
	}

	query := `
		UPDATE enrollments SET
			completion_percentage = $2,
			status = $3,
			completed_module_ids = $4,
			completed_exercises = $5,
			completed_activities = $6,
			quiz_results = $7,
			certificate_issued_at = CASE
				WHEN certificate_id IS NULL AND $8::text IS NOT NULL THEN $9
				ELSE certificate_issued_at
			END,
			certificate_id = COALESCE(certificate_id, $8),
			last_accessed = $10,
			updated_at = $11
		WHERE id = $1
		RETURNING certificate_id, certificate_issued_at
	`

	var (
		certID   *string
		issuedAt *time.Time
	)
	err = r.conn.QueryRow(ctx, query,
		e.ID, e.CompletionPercentage, string(e.Status),
		ledger.modules, ledger.exercises, ledger.activities, ledger.quizzes,
		nullableString(e.CertificateID), e.CertificateIssuedAt,
		e.LastAccessed, e.UpdatedAt,
	).Scan(&certID, &issuedAt)
	if err != nil {
		if IsNoRows(err) {
			return shared.ErrEnrollmentNotFound
		}
		if IsUniqueViolation(err) && constraintName(err) == "enrollments_certificate_id_key" {
			return shared.WrapError("enrollment", "Save", shared.ErrConcurrentModification,
				"certificate id collision", err)
		}
		return fmt.Errorf("failed to save enrollment: %w", err)
	}

	e.CertificateID = derefString(certID)
	e.CertificateIssuedAt = utcPtr(issuedAt)
	return nil
}

// ListByStudent returns a student's enrollments, newest first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]*enrollment.Enrollment, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE student_id = $1
		ORDER BY enrolled_at DESC, id`

	return r.queryEnrollments(ctx, query, studentID)
}

// ListAfter returns up to limit enrollments with id > afterID in id order.
func (r *EnrollmentRepository) ListAfter(ctx context.Context, afterID string, limit int) ([]*enrollment.Enrollment, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE id > $1
		ORDER BY id
		LIMIT $2`

	return r.queryEnrollments(ctx, query, afterID, limit)
}

func (r *EnrollmentRepository) queryEnrollments(ctx context.Context, query string, args ...interface{}) ([]*enrollment.Enrollment, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer rows.Close()

	var result []*enrollment.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows, shared.ErrEnrollmentNotFound)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}

	return result, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func scanEnrollment(row pgx.Row, notFound error) (*enrollment.Enrollment, error) {
	var (
		e        enrollment.Enrollment
		status   string
		ledger   ledgerJSON
		certID   *string
		issuedAt *time.Time
	)

	err := row.Scan(
		&e.ID, &e.StudentID, &e.CourseID, &e.CompletionPercentage, &status,
		&ledger.modules, &ledger.exercises, &ledger.activities, &ledger.quizzes,
		&certID, &issuedAt,
		&e.LastAccessed, &e.EnrolledAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, notFound
		}
		return nil, fmt.Errorf("failed to scan enrollment: %w", err)
	}

	e.Status = enrollment.Status(status)
	e.CertificateID = derefString(certID)
	e.CertificateIssuedAt = utcPtr(issuedAt)

	if err := json.Unmarshal(ledger.modules, &e.CompletedModuleIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completed modules: %w", err)
	}
	if err := json.Unmarshal(ledger.exercises, &e.CompletedExercises); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completed exercises: %w", err)
	}
	if err := json.Unmarshal(ledger.activities, &e.CompletedActivities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completed activities: %w", err)
	}
	if err := json.Unmarshal(ledger.quizzes, &e.QuizResults); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quiz results: %w", err)
	}

	return &e, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
