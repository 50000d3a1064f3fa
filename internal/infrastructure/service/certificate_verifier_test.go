package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/lms-backend/internal/domain/enrollment"
)

func certifiedEnrollment(t *testing.T) *enrollment.Enrollment {
	t.Helper()
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	e, err := enrollment.NewEnrollment(enrollment.NewEnrollmentParams{
		ID: "e1", StudentID: "student-1", CourseID: "course-1", Now: now,
	})
	require.NoError(t, err)
	e.CertificateID = "CERT-RSE1NT-1-ABCDEFGH"
	e.CertificateIssuedAt = &now
	return e
}

func TestCertificateVerifier(t *testing.T) {
	v, err := NewCertificateVerifier("secret-key")
	require.NoError(t, err)

	e := certifiedEnrollment(t)
	code := v.Code(e)
	assert.Len(t, code, 16)
	assert.Equal(t, code, v.Code(e), "code must be deterministic")

	assert.True(t, v.Verify(e, code))
	assert.True(t, v.Verify(e, strings.ToLower(code)))
	assert.False(t, v.Verify(e, "AAAAAAAAAAAAAAAA"))

	other, err := NewCertificateVerifier("another-key")
	require.NoError(t, err)
	assert.NotEqual(t, code, other.Code(e))

	tampered := *e
	tampered.StudentID = "student-2"
	assert.False(t, v.Verify(&tampered, code))
}

func TestCertificateVerifier_NoCertificate(t *testing.T) {
	v, err := NewCertificateVerifier("")
	require.NoError(t, err)

	e := certifiedEnrollment(t)
	e.CertificateID = ""
	e.CertificateIssuedAt = nil

	assert.Empty(t, v.Code(e))
	assert.False(t, v.Verify(e, ""))
}

func TestNewCertificateVerifier_KeyTooLong(t *testing.T) {
	_, err := NewCertificateVerifier(strings.Repeat("k", 65))
	assert.Error(t, err)
}
