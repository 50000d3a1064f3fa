package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/lms-backend/internal/domain/course"
	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"
)

func newEnrollment(t *testing.T, id, student string) *enrollment.Enrollment {
	t.Helper()
	e, err := enrollment.NewEnrollment(enrollment.NewEnrollmentParams{ID: id, StudentID: student, CourseID: "course-1"})
	require.NoError(t, err)
	return e
}

func seeded(t *testing.T) (*CourseRepository, *EnrollmentRepository) {
	t.Helper()
	courses := NewCourseRepository()
	require.NoError(t, courses.Save(context.Background(), &course.Course{
		ID: "course-1", Title: "Go", Modules: []course.Module{{ID: "m1", Title: "M1"}},
	}))
	return courses, NewEnrollmentRepository(courses)
}

func TestEnrollmentRepository_CreateConstraints(t *testing.T) {
	_, repo := seeded(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newEnrollment(t, "e1", "student-1")))
	assert.True(t, errors.Is(repo.Create(ctx, newEnrollment(t, "e2", "student-1")), shared.ErrEnrollmentExists))

	other := newEnrollment(t, "e3", "student-2")
	other.CourseID = "course-9"
	assert.True(t, errors.Is(repo.Create(ctx, other), shared.ErrCourseNotFound))
}

func TestEnrollmentRepository_ReadsAreCopies(t *testing.T) {
	_, repo := seeded(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newEnrollment(t, "e1", "student-1")))

	e, err := repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	e.MarkModule("m1", true, time.Now())

	again, err := repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Empty(t, again.CompletedModuleIDs)
}

func TestEnrollmentRepository_CertificateIsWriteOnce(t *testing.T) {
	_, repo := seeded(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newEnrollment(t, "e1", "student-1")))

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e, _ := repo.GetByID(ctx, "e1")
	e.CertificateID, e.CertificateIssuedAt = "CERT-1", &first
	require.NoError(t, repo.Save(ctx, e))

	later := first.Add(time.Hour)
	e.CertificateID, e.CertificateIssuedAt = "CERT-2", &later
	require.NoError(t, repo.Save(ctx, e))
	assert.Equal(t, "CERT-1", e.CertificateID)
	assert.Equal(t, first, *e.CertificateIssuedAt)

	found, err := repo.FindByCertificateID(ctx, "CERT-1")
	require.NoError(t, err)
	assert.Equal(t, "e1", found.ID)

	_, err = repo.FindByCertificateID(ctx, "CERT-2")
	assert.True(t, errors.Is(err, shared.ErrCertificateNotFound))
}

func TestEnrollmentRepository_ListAfter(t *testing.T) {
	_, repo := seeded(t)
	ctx := context.Background()
	for i, id := range []string{"e3", "e1", "e2"} {
		require.NoError(t, repo.Create(ctx, newEnrollment(t, id, "student-"+string(rune('a'+i)))))
	}

	page, err := repo.ListAfter(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "e1", page[0].ID)
	assert.Equal(t, "e2", page[1].ID)

	page, err = repo.ListAfter(ctx, "e2", 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "e3", page[0].ID)
}

func TestProgressEntryRepository_UpsertKeepsIdentity(t *testing.T) {
	repo := NewProgressEntryRepository()
	ctx := context.Background()
	now := time.Now()

	first := enrollment.NewProgressEntry("pe-1", "student-1", "course-1", "m1", now)
	require.NoError(t, repo.Upsert(ctx, first))

	second := enrollment.NewProgressEntry("pe-2", "student-1", "course-1", "m1", now)
	second.Apply(enrollment.EntryCompleted, 5, nil, now)
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, "pe-1", second.ID)

	list, err := repo.ListByStudentAndCourse(ctx, "student-1", "course-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, enrollment.EntryCompleted, list[0].Status)

	_, err = repo.Get(ctx, "student-1", "course-1", "m2")
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}
