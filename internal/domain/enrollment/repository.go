package enrollment

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции с записями на курс.
type Repository interface {
	// Create сохраняет новую запись.
	// Возвращает ErrEnrollmentExists, если пара (student, course) уже занята.
	Create(ctx context.Context, e *Enrollment) error

	// GetByID возвращает запись по ID.
	// Возвращает ErrEnrollmentNotFound, если запись не найдена.
	GetByID(ctx context.Context, id string) (*Enrollment, error)

	// FindByStudentAndCourse возвращает запись по паре (student, course).
	// Возвращает ErrEnrollmentNotFound, если запись не найдена.
	FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*Enrollment, error)

	// Save перезаписывает изменяемые поля. Поля сертификата, уже
	// записанные в хранилище, не перезаписываются.
	Save(ctx context.Context, e *Enrollment) error

	// ListByStudent возвращает все записи студента, новые первыми.
	ListByStudent(ctx context.Context, studentID string) ([]*Enrollment, error)

	// ListAfter возвращает до limit записей с ID > afterID в порядке ID.
	// Используется фоновой сверкой прогресса.
	ListAfter(ctx context.Context, afterID string, limit int) ([]*Enrollment, error)

	// FindByCertificateID возвращает запись по идентификатору сертификата.
	// Возвращает ErrCertificateNotFound, если сертификат не найден.
	FindByCertificateID(ctx context.Context, certificateID string) (*Enrollment, error)
}

// ProgressEntryRepository хранит журнал работы с модулями.
type ProgressEntryRepository interface {
	// Get возвращает запись по (student, course, module).
	// Возвращает shared.ErrNotFound, если записи нет.
	Get(ctx context.Context, studentID, courseID, moduleID string) (*ProgressEntry, error)

	// Upsert создаёт или обновляет запись по (student, course, module).
	Upsert(ctx context.Context, entry *ProgressEntry) error

	// ListByStudentAndCourse возвращает записи по курсу.
	ListByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]*ProgressEntry, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE INTERFACES
// Реализации находятся в infrastructure (redis, lock, service).
// ══════════════════════════════════════════════════════════════════════════════

// Locker сериализует изменения одной записи (student, course).
// Освобождение вызывается ровно один раз после сохранения.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LockKey возвращает ключ блокировки для пары (student, course).
func LockKey(studentID, courseID string) string {
	return "enrollment:" + studentID + ":" + courseID
}

// SnapshotCache хранит готовые снимки прогресса.
// Get возвращает false без ошибки при промахе.
type SnapshotCache interface {
	Get(ctx context.Context, studentID, courseID string, dest interface{}) (bool, error)
	Set(ctx context.Context, studentID, courseID string, snapshot interface{}) error
	Invalidate(ctx context.Context, studentID, courseID string) error
}

// CodeSigner выдаёт и проверяет код подлинности сертификата.
type CodeSigner interface {
	Code(e *Enrollment) string
	Verify(e *Enrollment, code string) bool
}
