package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillforge/lms-backend/internal/domain/course"
	"github.com/skillforge/lms-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CourseRepository implements course.Repository over courses and course_modules.
type CourseRepository struct {
	conn *Connection
}

// NewCourseRepository creates a new course repository.
func NewCourseRepository(conn *Connection) *CourseRepository {
	return &CourseRepository{conn: conn}
}

// Compile-time check that CourseRepository implements course.Repository.
var _ course.Repository = (*CourseRepository)(nil)

// GetByID loads a course with its modules in catalog order.
func (r *CourseRepository) GetByID(ctx context.Context, id string) (*course.Course, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, title, description, category, level, instructor_id,
			is_published, created_at, updated_at
		FROM courses
		WHERE id = $1
	`

	c, err := scanCourse(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	modules, err := r.loadModules(ctx, r.conn, id)
	if err != nil {
		return nil, err
	}
	c.Modules = modules

	return c, nil
}

// Save upserts the course row and replaces its module list in one transaction.
func (r *CourseRepository) Save(ctx context.Context, c *course.Course) error {
	if err := c.Validate(); err != nil {
		return err
	}

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	level := c.Level
	if level == "" {
		level = course.LevelBeginner
	}

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO courses (
				id, title, description, category, level, instructor_id,
				is_published, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				category = EXCLUDED.category,
				level = EXCLUDED.level,
				instructor_id = EXCLUDED.instructor_id,
				is_published = EXCLUDED.is_published,
				updated_at = EXCLUDED.updated_at
		`,
			c.ID, c.Title, c.Description, c.Category, string(level), c.InstructorID,
			c.IsPublished, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert course: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM course_modules WHERE course_id = $1`, c.ID); err != nil {
			return fmt.Errorf("failed to clear course modules: %w", err)
		}

		batch := &pgx.Batch{}
		for pos := range c.Modules {
			m := &c.Modules[pos]
			exercises, activities, quiz, err := marshalModuleItems(m)
			if err != nil {
				return err
			}
			batch.Queue(`
				INSERT INTO course_modules (
					course_id, id, position, title, content, video_url,
					duration_minutes, exercises, activities, quiz
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`, c.ID, m.ID, pos, m.Title, m.Content, m.VideoURL,
				m.DurationMinutes, exercises, activities, quiz)
		}

		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert course modules: %w", err)
		}
		return nil
	})
}

// List returns courses without their modules.
func (r *CourseRepository) List(ctx context.Context, opts course.ListOptions) ([]*course.Course, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, title, description, category, level, instructor_id,
			is_published, created_at, updated_at
		FROM courses
		WHERE ($1::boolean = FALSE OR is_published = TRUE)
		  AND ($2::text = '' OR instructor_id = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`

	rows, err := r.conn.Query(ctx, query, opts.PublishedOnly, opts.InstructorID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	var courses []*course.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}

	return courses, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (r *CourseRepository) loadModules(ctx context.Context, q Querier, courseID string) ([]course.Module, error) {
	rows, err := q.Query(ctx, `
		SELECT id, title, content, video_url, duration_minutes, exercises, activities, quiz
		FROM course_modules
		WHERE course_id = $1
		ORDER BY position
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query course modules: %w", err)
	}
	defer rows.Close()

	modules := make([]course.Module, 0)
	for rows.Next() {
		var (
			m                           course.Module
			exercises, activities, quiz []byte
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.Content, &m.VideoURL, &m.DurationMinutes,
			&exercises, &activities, &quiz); err != nil {
			return nil, fmt.Errorf("failed to scan course module: %w", err)
		}
		if err := json.Unmarshal(exercises, &m.Exercises); err != nil {
			return nil, fmt.Errorf("failed to unmarshal exercises: %w", err)
		}
		if err := json.Unmarshal(activities, &m.Activities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal activities: %w", err)
		}
		if err := json.Unmarshal(quiz, &m.Quiz); err != nil {
			return nil, fmt.Errorf("failed to unmarshal quiz: %w", err)
		}
		modules = append(modules, m)
	}

	return modules, rows.Err()
}

func marshalModuleItems(m *course.Module) (exercises, activities, quiz []byte, err error) {
	if exercises, err = marshalList(m.Exercises); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal exercises: %w", err)
	}
	if activities, err = marshalList(m.Activities); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal activities: %w", err)
	}
	if quiz, err = marshalList(m.Quiz); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal quiz: %w", err)
	}
	return exercises, activities, quiz, nil
}

// marshalList encodes nil slices as [] so JSONB columns never hold null.
func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func scanCourse(row pgx.Row) (*course.Course, error) {
	var (
		c     course.Course
		level string
	)

	err := row.Scan(
		&c.ID, &c.Title, &c.Description, &c.Category, &level, &c.InstructorID,
		&c.IsPublished, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to scan course: %w", err)
	}

	c.Level = course.Level(level)
	return &c, nil
}
