package eventhandler

import (
	"github.com/skillforge/lms-backend/internal/domain/shared"
	"github.com/skillforge/lms-backend/pkg/logger"
)

// AuditLogHandler пишет каждое доменное событие в структурированный лог.
// Подписывается через SubscribeAll.
type AuditLogHandler struct {
	log *logger.Logger
}

// NewAuditLogHandler создаёт обработчик.
func NewAuditLogHandler(log *logger.Logger) *AuditLogHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AuditLogHandler{log: log.With(logger.String("handler", "audit_log"))}
}

// Handle реализует shared.EventHandler.
func (h *AuditLogHandler) Handle(event shared.Event) error {
	fields := []logger.Field{
		logger.String("event_type", string(event.EventType())),
		logger.String("aggregate_id", event.AggregateID()),
		logger.Time("occurred_at", event.OccurredAt()),
	}
	for k, v := range event.Payload() {
		fields = append(fields, logger.Any(k, v))
	}
	h.log.Info("domain event", fields...)
	return nil
}
