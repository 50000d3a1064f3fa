package command

import (
	"github.com/skillforge/lms-backend/internal/application/saga"
	"github.com/skillforge/lms-backend/internal/domain/enrollment"
)

// ProgressResult is returned by every command that changes the ledger.
type ProgressResult struct {
	Enrollment *enrollment.Enrollment
	Evaluation enrollment.Evaluation
}

func progressResult(res *saga.ProgressFlowResult) *ProgressResult {
	return &ProgressResult{Enrollment: res.Enrollment, Evaluation: res.Evaluation}
}
