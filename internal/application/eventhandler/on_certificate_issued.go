// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"time"

	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"
	"github.com/skillforge/lms-backend/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON CERTIFICATE ISSUED HANDLER
// Фиксирует выдачу сертификата в журнале и сбрасывает снимок прогресса,
// чтобы статус сертификата был виден сразу.
// ═══════════════════════════════════════════════════════════════════════════

// OnCertificateIssuedHandler обрабатывает событие выдачи сертификата.
type OnCertificateIssuedHandler struct {
	snapshots enrollment.SnapshotCache
	log       *logger.Logger
	timeout   time.Duration
}

// NewOnCertificateIssuedHandler создаёт обработчик. snapshots может быть nil.
func NewOnCertificateIssuedHandler(snapshots enrollment.SnapshotCache, log *logger.Logger) *OnCertificateIssuedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnCertificateIssuedHandler{
		snapshots: snapshots,
		log:       log.With(logger.String("handler", "on_certificate_issued")),
		timeout:   5 * time.Second,
	}
}

// Handle реализует shared.EventHandler.
func (h *OnCertificateIssuedHandler) Handle(event shared.Event) error {
	issued, ok := event.(shared.CertificateIssuedEvent)
	if !ok {
		h.log.Warn("received unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	h.log.Info("certificate issued",
		logger.Certificate(issued.CertificateID),
		logger.EnrollmentID(issued.AggregateID()),
		logger.StudentID(issued.StudentID),
		logger.CourseID(issued.CourseID),
		logger.Time("issued_at", issued.IssuedAt),
	)

	if h.snapshots == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	return h.snapshots.Invalidate(ctx, issued.StudentID, issued.CourseID)
}
