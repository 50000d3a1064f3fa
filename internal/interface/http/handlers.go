package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/lms-backend/config"
	"github.com/skillforge/lms-backend/internal/application/command"
	"github.com/skillforge/lms-backend/internal/application/query"
	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST AND RESPONSE BODIES
// ══════════════════════════════════════════════════════════════════════════════

type enrollRequest struct {
	CourseID string `json:"courseId" binding:"required,max=128"`
}

type updateProgressRequest struct {
	CourseID  string `json:"courseId" binding:"required,max=128"`
	Progress  *int   `json:"progress" binding:"omitempty,min=0,max=100"`
	ModuleID  string `json:"moduleId" binding:"max=128"`
	Completed *bool  `json:"completed"`
}

type setStatusRequest struct {
	CourseID  string `json:"courseId" binding:"required,max=128"`
	StudentID string `json:"studentId" binding:"required,max=128"`
	Status    string `json:"status" binding:"required,oneof=active completed dropped"`
}

type moduleCompleteRequest struct {
	CourseID         string  `json:"courseId" binding:"required,max=128"`
	ModuleID         string  `json:"moduleId" binding:"required,max=128"`
	Status           string  `json:"status" binding:"omitempty,oneof=not-started in-progress completed"`
	Completed        *bool   `json:"completed"`
	TimeSpentMinutes int     `json:"timeSpentMinutes" binding:"min=0,max=10080"`
	Notes            *string `json:"notes" binding:"omitempty,max=4000"`
}

type practiceCompleteRequest struct {
	CourseID  string `json:"courseId" binding:"required,max=128"`
	ModuleID  string `json:"moduleId" binding:"required,max=128"`
	ItemType  string `json:"itemType" binding:"required,oneof=exercise activity"`
	ItemIndex *int   `json:"itemIndex" binding:"required,min=0"`
	Completed *bool  `json:"completed" binding:"required"`
}

type quizRequest struct {
	CourseID string `json:"courseId" binding:"required,max=128"`
	ModuleID string `json:"moduleId" binding:"required,max=128"`
	Answers  []any  `json:"answers" binding:"required"`
}

type progressResponse struct {
	Enrollment *enrollment.Enrollment `json:"enrollment"`
	Evaluation enrollment.Evaluation  `json:"evaluation"`
}

func toProgressResponse(r *command.ProgressResult) progressResponse {
	return progressResponse{Enrollment: r.Enrollment, Evaluation: r.Evaluation}
}

// principal returns the authenticated caller. Routes behind RequireAuth always have one.
func principal(c *gin.Context) handlers.Principal {
	p, _ := handlers.PrincipalFrom(c)
	return p
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports the aggregated status of all registered checks.
func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.HealthChecker == nil {
		writeJSON(c, http.StatusOK, gin.H{
			"status":  "healthy",
			"uptime":  s.Uptime().String(),
			"version": s.config.Version,
		})
		return
	}

	report := s.deps.HealthChecker.Check(c.Request.Context())
	code := http.StatusOK
	if !report.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, JSONResponse{Success: report.Healthy(), Data: report, Meta: newMeta(c)})
}

// handleReady handles the readiness probe. Only critical checks affect it.
func (s *Server) handleReady(c *gin.Context) {
	if s.deps.HealthChecker != nil {
		report := s.deps.HealthChecker.Check(c.Request.Context())
		if !report.Ready() {
			writeError(c, http.StatusServiceUnavailable, "not_ready", report.Summary())
			return
		}
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ready"})
}

// handleLive handles the liveness probe.
func (s *Server) handleLive(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleEnroll handles POST /api/v1/enrollments
func (s *Server) handleEnroll(c *gin.Context) {
	var req enrollRequest
	if !bindJSON(c, &req) {
		return
	}
	p := principal(c)

	res, err := s.deps.Enroll.Handle(c.Request.Context(), command.EnrollCommand{
		StudentID:        p.UserID,
		CourseID:         req.CourseID,
		AllowUnpublished: p.Role.Satisfies(handlers.RoleInstructor),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(c, status, gin.H{"enrollment": res.Enrollment, "created": res.Created})
}

// handleListMyEnrollments handles GET /api/v1/enrollments/my-courses
func (s *Server) handleListMyEnrollments(c *gin.Context) {
	items, err := s.deps.ListMyEnrollments.Handle(c.Request.Context(), query.ListMyEnrollmentsQuery{
		StudentID: principal(c).UserID,
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	if items == nil {
		items = []query.MyEnrollmentDTO{}
	}
	writeJSON(c, http.StatusOK, items)
}

// handleUpdateProgress handles PUT /api/v1/enrollments/progress
func (s *Server) handleUpdateProgress(c *gin.Context) {
	var req updateProgressRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := s.deps.UpdateProgress.Handle(c.Request.Context(), command.UpdateProgressCommand{
		StudentID: principal(c).UserID,
		CourseID:  req.CourseID,
		Progress:  req.Progress,
		ModuleID:  req.ModuleID,
		Completed: req.Completed,
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toProgressResponse(res))
}

// handleSetEnrollmentStatus handles PUT /api/v1/enrollments/status
func (s *Server) handleSetEnrollmentStatus(c *gin.Context) {
	var req setStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	p := principal(c)

	res, err := s.deps.SetEnrollmentStatus.Handle(c.Request.Context(), command.SetEnrollmentStatusCommand{
		ActorID:      p.UserID,
		ActorIsAdmin: p.IsAdmin(),
		StudentID:    req.StudentID,
		CourseID:     req.CourseID,
		Status:       req.Status,
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toProgressResponse(res))
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetProgress handles GET /api/v1/progress/:courseId
func (s *Server) handleGetProgress(c *gin.Context) {
	res, err := s.deps.GetProgressSnapshot.Handle(c.Request.Context(), query.GetProgressSnapshotQuery{
		StudentID: principal(c).UserID,
		CourseID:  c.Param("courseId"),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}

	snapshot := *res.Snapshot
	if snapshot.Course != nil {
		snapshot.Course = snapshot.Course.ForLearner()
	}
	meta := newMeta(c)
	meta.FromCache = res.FromCache
	writeJSONWithMeta(c, http.StatusOK, snapshot, meta)
}

// handleMarkModuleComplete handles PUT /api/v1/progress/module-complete
func (s *Server) handleMarkModuleComplete(c *gin.Context) {
	var req moduleCompleteRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := s.deps.MarkModuleComplete.Handle(c.Request.Context(), command.MarkModuleCompleteCommand{
		StudentID:        principal(c).UserID,
		CourseID:         req.CourseID,
		ModuleID:         req.ModuleID,
		Completed:        req.Completed,
		Status:           req.Status,
		TimeSpentMinutes: req.TimeSpentMinutes,
		Notes:            req.Notes,
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"enrollment":    res.Enrollment,
		"evaluation":    res.Evaluation,
		"progressEntry": res.Entry,
	})
}

// handleTogglePracticeItem handles PUT /api/v1/progress/practice-complete
func (s *Server) handleTogglePracticeItem(c *gin.Context) {
	var req practiceCompleteRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := s.deps.TogglePracticeItem.Handle(c.Request.Context(), command.TogglePracticeItemCommand{
		StudentID: principal(c).UserID,
		CourseID:  req.CourseID,
		ModuleID:  req.ModuleID,
		ItemType:  req.ItemType,
		ItemIndex: *req.ItemIndex,
		Completed: *req.Completed,
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toProgressResponse(res))
}

// handleSubmitQuiz handles POST /api/v1/progress/quiz
func (s *Server) handleSubmitQuiz(c *gin.Context) {
	var req quizRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := s.deps.SubmitQuiz.Handle(c.Request.Context(), command.SubmitQuizCommand{
		StudentID: principal(c).UserID,
		CourseID:  req.CourseID,
		ModuleID:  req.ModuleID,
		Answers:   req.Answers,
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"enrollment": res.Enrollment,
		"evaluation": res.Evaluation,
		"quizResult": res.Result,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// CERTIFICATE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetCertificate handles GET /api/v1/progress/:courseId/certificate
func (s *Server) handleGetCertificate(c *gin.Context) {
	dto, err := s.deps.GetCertificateStatus.Handle(c.Request.Context(), query.GetCertificateStatusQuery{
		StudentID: principal(c).UserID,
		CourseID:  c.Param("courseId"),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, dto)
}

// handleVerifyCertificate handles GET /api/v1/certificates/:certificateId/verify?code=
func (s *Server) handleVerifyCertificate(c *gin.Context) {
	if s.deps.Features != nil && !s.deps.Features.IsEnabled(config.FeatureCertificateVerify, nil) {
		writeError(c, http.StatusNotFound, "not_found", "route not found")
		return
	}

	dto, err := s.deps.VerifyCertificate.Handle(c.Request.Context(), query.VerifyCertificateQuery{
		CertificateID: c.Param("certificateId"),
		Code:          c.Query("code"),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, dto)
}
