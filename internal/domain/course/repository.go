package course

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// ListOptions задаёт фильтры для списка курсов.
type ListOptions struct {
	Limit         int
	Offset        int
	PublishedOnly bool
	InstructorID  string
}

// Repository определяет операции с курсами.
type Repository interface {
	// GetByID возвращает курс вместе со всеми модулями и вопросами квизов.
	// Возвращает ErrCourseNotFound, если курс не найден.
	GetByID(ctx context.Context, id string) (*Course, error)

	// Save создаёт или полностью перезаписывает курс вместе с модулями.
	Save(ctx context.Context, course *Course) error

	// List возвращает курсы без модулей.
	List(ctx context.Context, opts ListOptions) ([]*Course, error)
}
