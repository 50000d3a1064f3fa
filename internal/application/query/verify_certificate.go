package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/skillforge/lms-backend/internal/domain/course"
	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VERIFY CERTIFICATE QUERY
// Публичная проверка: по идентификатору сертификата и коду подлинности.
// При неверном коде детали сертификата не раскрываются.
// ══════════════════════════════════════════════════════════════════════════════

// VerifyCertificateQuery содержит параметры проверки.
type VerifyCertificateQuery struct {
	CertificateID string
	Code          string
}

// Validate проверяет корректность параметров запроса.
func (q VerifyCertificateQuery) Validate() error {
	if strings.TrimSpace(q.CertificateID) == "" {
		return shared.NewDomainError("certificate", "Verify", shared.ErrEmptyValue, "certificate id is required")
	}
	if strings.TrimSpace(q.Code) == "" {
		return shared.NewDomainError("certificate", "Verify", shared.ErrEmptyValue, "verification code is required")
	}
	return nil
}

// CertificateVerificationDTO - результат проверки.
type CertificateVerificationDTO struct {
	Valid         bool       `json:"valid"`
	CertificateID string     `json:"certificateId"`
	StudentID     string     `json:"studentId,omitempty"`
	CourseID      string     `json:"courseId,omitempty"`
	CourseTitle   string     `json:"courseTitle,omitempty"`
	IssuedAt      *time.Time `json:"issuedAt,omitempty"`
}

// VerifyCertificateHandler обрабатывает проверку.
type VerifyCertificateHandler struct {
	enrollments enrollment.Repository
	courses     course.Repository
	signer      enrollment.CodeSigner
}

// NewVerifyCertificateHandler создаёт обработчик.
func NewVerifyCertificateHandler(enrollments enrollment.Repository, courses course.Repository, signer enrollment.CodeSigner) *VerifyCertificateHandler {
	return &VerifyCertificateHandler{enrollments: enrollments, courses: courses, signer: signer}
}

// Handle выполняет проверку.
func (h *VerifyCertificateHandler) Handle(ctx context.Context, q VerifyCertificateQuery) (*CertificateVerificationDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("verify_certificate: validation failed: %w", err)
	}
	id := strings.TrimSpace(q.CertificateID)

	e, err := h.enrollments.FindByCertificateID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("verify_certificate: %w", err)
	}

	dto := &CertificateVerificationDTO{CertificateID: id}
	if !h.signer.Verify(e, q.Code) {
		return dto, nil
	}

	dto.Valid = true
	dto.StudentID = e.StudentID
	dto.CourseID = e.CourseID
	dto.IssuedAt = e.CertificateIssuedAt
	if c, err := h.courses.GetByID(ctx, e.CourseID); err == nil {
		dto.CourseTitle = c.Title
	}
	return dto, nil
}
