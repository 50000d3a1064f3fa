package query

import (
	"context"
	"fmt"
	"time"

	"github.com/skillforge/lms-backend/internal/application/saga"
	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"
	"github.com/skillforge/lms-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CERTIFICATE STATUS QUERY
// Выдан ли сертификат. Пересчёт перед ответом выдаёт сертификат,
// если условия выполнены, но запись ещё не пересчитывалась.
// ══════════════════════════════════════════════════════════════════════════════

// GetCertificateStatusQuery содержит параметры запроса.
type GetCertificateStatusQuery struct {
	StudentID string
	CourseID  string
}

// Validate проверяет корректность параметров запроса.
func (q GetCertificateStatusQuery) Validate() error {
	if _, err := shared.NewStudentID(q.StudentID); err != nil {
		return err
	}
	if _, err := shared.NewCourseID(q.CourseID); err != nil {
		return err
	}
	return nil
}

// CertificateStatusDTO - статус сертификата.
type CertificateStatusDTO struct {
	Issued           bool       `json:"issued"`
	CertificateID    string     `json:"certificateId,omitempty"`
	IssuedAt         *time.Time `json:"issuedAt,omitempty"`
	VerificationCode string     `json:"verificationCode,omitempty"`

	CompletionPercentage int               `json:"completionPercentage"`
	Status               enrollment.Status `json:"status"`
}

// GetCertificateStatusHandler обрабатывает запрос.
type GetCertificateStatusHandler struct {
	flow   *saga.ProgressFlowSaga
	signer enrollment.CodeSigner
	log    *logger.Logger
}

// NewGetCertificateStatusHandler создаёт обработчик. signer может быть nil.
func NewGetCertificateStatusHandler(flow *saga.ProgressFlowSaga, signer enrollment.CodeSigner, log *logger.Logger) *GetCertificateStatusHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetCertificateStatusHandler{flow: flow, signer: signer, log: log.With(logger.Component("get_certificate_status"))}
}

// Handle выполняет запрос.
func (h *GetCertificateStatusHandler) Handle(ctx context.Context, q GetCertificateStatusQuery) (*CertificateStatusDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_certificate_status: validation failed: %w", err)
	}

	res, err := h.flow.Recompute(ctx, q.StudentID, q.CourseID, saga.TriggerRead)
	if err != nil {
		return nil, fmt.Errorf("get_certificate_status: %w", err)
	}
	e := res.Enrollment

	dto := &CertificateStatusDTO{
		Issued:               e.HasCertificate(),
		CompletionPercentage: e.CompletionPercentage,
		Status:               e.Status,
	}
	if dto.Issued {
		dto.CertificateID = e.CertificateID
		dto.IssuedAt = e.CertificateIssuedAt
		if h.signer != nil {
			dto.VerificationCode = h.signer.Code(e)
		}
	}
	return dto, nil
}
