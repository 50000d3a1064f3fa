package enrollment

import (
	"github.com/skillforge/lms-backend/internal/domain/course"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// Пересчёт прогресса -> статус -> сертификат.
// ══════════════════════════════════════════════════════════════════════════════

// Evaluation - результат одного пересчёта.
type Evaluation struct {
	PreviousPercentage int    `json:"previousPercentage"`
	Percentage         int    `json:"percentage"`
	PreviousStatus     Status `json:"previousStatus"`
	Status             Status `json:"status"`
	CertificateIssued  bool   `json:"certificateIssued"`
}

// PercentageChanged возвращает true, если процент изменился.
func (ev Evaluation) PercentageChanged() bool {
	return ev.PreviousPercentage != ev.Percentage
}

// StatusChanged возвращает true, если статус изменился.
func (ev Evaluation) StatusChanged() bool {
	return ev.PreviousStatus != ev.Status
}

// Changed возвращает true, если запись нужно сохранить.
func (ev Evaluation) Changed() bool {
	return ev.PercentageChanged() || ev.StatusChanged() || ev.CertificateIssued
}

// Engine объединяет агрегатор, машину состояний и выдачу сертификата.
type Engine struct {
	issuer *CertificateIssuer
}

// NewEngine создаёт движок.
func NewEngine(issuer *CertificateIssuer) *Engine {
	if issuer == nil {
		issuer = NewCertificateIssuer(IssuerConfig{})
	}
	return &Engine{issuer: issuer}
}

// Issuer возвращает issuer движка.
func (en *Engine) Issuer() *CertificateIssuer {
	return en.issuer
}

// Evaluate пересчитывает процент из журнала, обновляет статус
// и при необходимости выдаёт сертификат. fallback используется
// только для курса без пунктов.
func (en *Engine) Evaluate(c *course.Course, e *Enrollment, fallback *int) (Evaluation, error) {
	ev := Evaluation{
		PreviousPercentage: e.CompletionPercentage,
		PreviousStatus:     e.Status,
	}
	pct := ComputeProgress(c, e, fallback)
	e.ApplyProgress(pct)
	ev.Percentage = e.CompletionPercentage
	ev.Status = e.Status

	issued, err := en.issuer.MaybeIssue(c, e)
	if err != nil {
		return ev, err
	}
	ev.CertificateIssued = issued
	return ev, nil
}
