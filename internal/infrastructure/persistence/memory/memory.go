// Package memory provides in-process repositories used in development when no
// database is configured, and as fakes in application tests. Every read
// returns a deep copy, so callers observe the same isolation as with postgres.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/skillforge/lms-backend/internal/domain/course"
	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CourseRepository implements course.Repository.
type CourseRepository struct {
	mu      sync.RWMutex
	courses map[string]*course.Course
}

// NewCourseRepository creates an empty repository.
func NewCourseRepository() *CourseRepository {
	return &CourseRepository{courses: make(map[string]*course.Course)}
}

// GetByID returns a course with its modules.
func (r *CourseRepository) GetByID(_ context.Context, id string) (*course.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.courses[id]
	if !ok {
		return nil, shared.ErrCourseNotFound
	}
	return cloneCourse(c), nil
}

// Save upserts a course.
func (r *CourseRepository) Save(_ context.Context, c *course.Course) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.courses[c.ID] = cloneCourse(c)
	return nil
}

// List returns courses ordered by ID without modules.
func (r *CourseRepository) List(_ context.Context, opts course.ListOptions) ([]*course.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*course.Course, 0, len(r.courses))
	for _, c := range r.courses {
		if opts.PublishedOnly && !c.IsPublished {
			continue
		}
		if opts.InstructorID != "" && c.InstructorID != opts.InstructorID {
			continue
		}
		cp := *c
		cp.Modules = nil
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []*course.Course{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements enrollment.Repository.
type EnrollmentRepository struct {
	mu      sync.RWMutex
	byID    map[string]*enrollment.Enrollment
	byPair  map[string]string
	courses *CourseRepository
}

// NewEnrollmentRepository creates an empty repository. When courses is not
// nil, Create rejects unknown courses the way a foreign key would.
func NewEnrollmentRepository(courses *CourseRepository) *EnrollmentRepository {
	return &EnrollmentRepository{
		byID:    make(map[string]*enrollment.Enrollment),
		byPair:  make(map[string]string),
		courses: courses,
	}
}

func pairKey(studentID, courseID string) string {
	return studentID + "\x00" + courseID
}

// Create stores a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	if r.courses != nil {
		if _, err := r.courses.GetByID(ctx, e.CourseID); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey(e.StudentID, e.CourseID)
	if _, ok := r.byPair[key]; ok {
		return shared.ErrEnrollmentExists
	}
	if _, ok := r.byID[e.ID]; ok {
		return shared.ErrEnrollmentExists
	}
	r.byID[e.ID] = cloneEnrollment(e)
	r.byPair[key] = e.ID
	return nil
}

// GetByID returns an enrollment by ID.
func (r *EnrollmentRepository) GetByID(_ context.Context, id string) (*enrollment.Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrEnrollmentNotFound
	}
	return cloneEnrollment(e), nil
}

// FindByStudentAndCourse returns the enrollment of a pair.
func (r *EnrollmentRepository) FindByStudentAndCourse(_ context.Context, studentID, courseID string) (*enrollment.Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPair[pairKey(studentID, courseID)]
	if !ok {
		return nil, shared.ErrEnrollmentNotFound
	}
	return cloneEnrollment(r.byID[id]), nil
}

// Save overwrites mutable fields. Certificate fields already stored win, and
// the stored values are written back into e.
func (r *EnrollmentRepository) Save(_ context.Context, e *enrollment.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[e.ID]
	if !ok {
		return shared.ErrEnrollmentNotFound
	}
	if stored.CertificateID != "" {
		at := *stored.CertificateIssuedAt
		e.CertificateID = stored.CertificateID
		e.CertificateIssuedAt = &at
	} else if e.CertificateID != "" {
		for id, other := range r.byID {
			if id != e.ID && other.CertificateID == e.CertificateID {
				return shared.WrapError("enrollment", "Save", shared.ErrConcurrentModification,
					"certificate id already taken", shared.ErrAlreadyExists)
			}
		}
	}
	next := cloneEnrollment(e)
	next.StudentID = stored.StudentID
	next.CourseID = stored.CourseID
	next.EnrolledAt = stored.EnrolledAt
	next.CreatedAt = stored.CreatedAt
	r.byID[e.ID] = next
	return nil
}

// ListByStudent returns the student's enrollments, newest first.
func (r *EnrollmentRepository) ListByStudent(_ context.Context, studentID string) ([]*enrollment.Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*enrollment.Enrollment, 0)
	for _, e := range r.byID {
		if e.StudentID == studentID {
			out = append(out, cloneEnrollment(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnrolledAt.Equal(out[j].EnrolledAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].EnrolledAt.After(out[j].EnrolledAt)
	})
	return out, nil
}

// ListAfter returns up to limit enrollments with ID greater than afterID.
func (r *EnrollmentRepository) ListAfter(_ context.Context, afterID string, limit int) ([]*enrollment.Enrollment, error) {
	if limit <= 0 {
		limit = 100
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*enrollment.Enrollment, len(ids))
	for i, id := range ids {
		out[i] = cloneEnrollment(r.byID[id])
	}
	return out, nil
}

// FindByCertificateID returns the enrollment holding a certificate.
func (r *EnrollmentRepository) FindByCertificateID(_ context.Context, certificateID string) (*enrollment.Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.byID {
		if certificateID != "" && e.CertificateID == certificateID {
			return cloneEnrollment(e), nil
		}
	}
	return nil, shared.ErrCertificateNotFound
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS ENTRY REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProgressEntryRepository implements enrollment.ProgressEntryRepository.
type ProgressEntryRepository struct {
	mu      sync.RWMutex
	entries map[string]*enrollment.ProgressEntry
}

// NewProgressEntryRepository creates an empty repository.
func NewProgressEntryRepository() *ProgressEntryRepository {
	return &ProgressEntryRepository{entries: make(map[string]*enrollment.ProgressEntry)}
}

func entryKey(studentID, courseID, moduleID string) string {
	return studentID + "\x00" + courseID + "\x00" + moduleID
}

// Get returns the entry of a module.
func (r *ProgressEntryRepository) Get(_ context.Context, studentID, courseID, moduleID string) (*enrollment.ProgressEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[entryKey(studentID, courseID, moduleID)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// Upsert creates or replaces the entry of a module. The first stored ID wins.
func (r *ProgressEntryRepository) Upsert(_ context.Context, entry *enrollment.ProgressEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entryKey(entry.StudentID, entry.CourseID, entry.ModuleID)
	if stored, ok := r.entries[key]; ok {
		entry.ID = stored.ID
		entry.CreatedAt = stored.CreatedAt
	}
	cp := *entry
	r.entries[key] = &cp
	return nil
}

// ListByStudentAndCourse returns entries ordered by module ID.
func (r *ProgressEntryRepository) ListByStudentAndCourse(_ context.Context, studentID, courseID string) ([]*enrollment.ProgressEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*enrollment.ProgressEntry, 0)
	for _, p := range r.entries {
		if p.StudentID == studentID && p.CourseID == courseID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleID < out[j].ModuleID })
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotCache implements enrollment.SnapshotCache with JSON values, so a
// hit decodes exactly like the redis cache does.
type SnapshotCache struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewSnapshotCache creates an empty cache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{values: make(map[string][]byte)}
}

// Get decodes a cached snapshot into dest.
func (c *SnapshotCache) Get(_ context.Context, studentID, courseID string, dest interface{}) (bool, error) {
	c.mu.RLock()
	data, ok := c.values[pairKey(studentID, courseID)]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores a snapshot.
func (c *SnapshotCache) Set(_ context.Context, studentID, courseID string, snapshot interface{}) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.values[pairKey(studentID, courseID)] = data
	c.mu.Unlock()
	return nil
}

// Invalidate drops a snapshot.
func (c *SnapshotCache) Invalidate(_ context.Context, studentID, courseID string) error {
	c.mu.Lock()
	delete(c.values, pairKey(studentID, courseID))
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached snapshots.
func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// ══════════════════════════════════════════════════════════════════════════════
// COPY HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func cloneCourse(c *course.Course) *course.Course {
	cp := *c
	cp.Modules = make([]course.Module, len(c.Modules))
	for i, m := range c.Modules {
		mc := m
		mc.Exercises = append([]course.PracticeItem(nil), m.Exercises...)
		mc.Activities = append([]course.PracticeItem(nil), m.Activities...)
		mc.Quiz = make([]course.QuizQuestion, len(m.Quiz))
		for j, q := range m.Quiz {
			qc := q
			qc.Options = append([]string(nil), q.Options...)
			mc.Quiz[j] = qc
		}
		cp.Modules[i] = mc
	}
	return &cp
}

func cloneEnrollment(e *enrollment.Enrollment) *enrollment.Enrollment {
	cp := *e
	cp.CompletedModuleIDs = append([]string{}, e.CompletedModuleIDs...)
	cp.CompletedExercises = append([]enrollment.CompletedExercise{}, e.CompletedExercises...)
	cp.CompletedActivities = append([]enrollment.CompletedActivity{}, e.CompletedActivities...)
	cp.QuizResults = append([]enrollment.QuizResult{}, e.QuizResults...)
	if e.CertificateIssuedAt != nil {
		at := *e.CertificateIssuedAt
		cp.CertificateIssuedAt = &at
	}
	return &cp
}
