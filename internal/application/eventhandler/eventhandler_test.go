package eventhandler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/lms-backend/internal/domain/shared"
	"github.com/skillforge/lms-backend/internal/infrastructure/persistence/memory"
)

func TestOnCertificateIssued_InvalidatesSnapshot(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewSnapshotCache()
	require.NoError(t, cache.Set(ctx, "student-1", "course-1", map[string]int{"p": 100}))
	require.NoError(t, cache.Set(ctx, "student-1", "course-2", map[string]int{"p": 10}))

	h := NewOnCertificateIssuedHandler(cache, nil)
	err := h.Handle(shared.NewCertificateIssuedEvent("enr-1", "student-1", "course-1", "CERT-AAAA0001-BBBB0002", time.Now()))
	require.NoError(t, err)

	assert.Equal(t, 1, cache.Len())
	var dest map[string]int
	hit, err := cache.Get(ctx, "student-1", "course-1", &dest)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestOnCertificateIssued_IgnoresOtherEvents(t *testing.T) {
	h := NewOnCertificateIssuedHandler(nil, nil)
	assert.NoError(t, h.Handle(shared.NewEnrollmentCreatedEvent("enr-1", "student-1", "course-1")))
	assert.NoError(t, h.Handle(shared.NewCertificateIssuedEvent("enr-1", "student-1", "course-1", "CERT-X", time.Now())))
}

func TestAuditLogHandler(t *testing.T) {
	h := NewAuditLogHandler(nil)
	assert.NoError(t, h.Handle(shared.NewQuizSubmittedEvent("enr-1", "student-1", "course-1", "m1", 2, 3, false)))
}
