package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
	"github.com/hellf17/clinical-corvus-sub005/internal/history"
	"github.com/hellf17/clinical-corvus-sub005/pkg/remote"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

type createPatientRequest struct {
	Name      string     `json:"name" binding:"required"`
	BirthDate *time.Time `json:"birth_date"`
}

type scoresResponse struct {
	PatientID   string                     `json:"patient_id"`
	ComputedAt  time.Time                  `json:"computed_at"`
	Scores      []domain.ScoreResult       `json:"scores"`
	CrossChecks []*remote.CrossCheckResult `json:"cross_checks,omitempty"`
}

type scoreResponse struct {
	PatientID  string                   `json:"patient_id,omitempty"`
	ComputedAt time.Time                `json:"computed_at"`
	Score      *domain.ScoreResult      `json:"score"`
	CrossCheck *remote.CrossCheckResult `json:"cross_check,omitempty"`
}

type historyResponse struct {
	PatientID string              `json:"patient_id"`
	Limit     int                 `json:"limit"`
	Offset    int                 `json:"offset"`
	Runs      []*history.ScoreRun `json:"runs"`
}

func (s *Server) requestID(c *gin.Context) string {
	return c.GetString("request_id")
}

func (s *Server) abortError(c *gin.Context, status int, code, message, details string) {
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, details, s.requestID(c)))
}

// patientID parses the :id path parameter. A false return means the
// handler has already written the error response.
func (s *Server) patientID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid patient id", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit = defaultPageLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

// handleCreatePatient handles patient registration requests
func (s *Server) handleCreatePatient(c *gin.Context) {
	var req createPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid patient payload", err.Error())
		return
	}

	patient := &domain.Patient{
		Name:      req.Name,
		BirthDate: req.BirthDate,
	}
	if err := s.patients.CreatePatient(c.Request.Context(), patient); err != nil {
		s.log.WithError(err).Error("Failed to create patient")
		s.abortError(c, http.StatusInternalServerError, domain.ErrCodeDatabaseError, "failed to create patient", "")
		return
	}

	c.JSON(http.StatusCreated, patient)
}

// handleListPatients handles paginated patient listing
func (s *Server) handleListPatients(c *gin.Context) {
	limit, offset := pageParams(c)

	patients, err := s.patients.ListPatients(c.Request.Context(), limit, offset)
	if err != nil {
		s.log.WithError(err).Error("Failed to list patients")
		s.abortError(c, http.StatusInternalServerError, domain.ErrCodeDatabaseError, "failed to list patients", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"patients": patients,
		"limit":    limit,
		"offset":   offset,
	})
}

// handleGetPatient handles patient retrieval requests
func (s *Server) handleGetPatient(c *gin.Context) {
	id, ok := s.patientID(c)
	if !ok {
		return
	}

	patient, err := s.patients.GetPatient(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.abortError(c, http.StatusNotFound, domain.ErrCodeNotFound, "patient not found", "")
			return
		}
		s.log.WithError(err).Error("Failed to get patient")
		s.abortError(c, http.StatusInternalServerError, domain.ErrCodeDatabaseError, "failed to get patient", "")
		return
	}

	c.JSON(http.StatusOK, patient)
}

// handleDeletePatient handles patient deletion requests
func (s *Server) handleDeletePatient(c *gin.Context) {
	id, ok := s.patientID(c)
	if !ok {
		return
	}

	if err := s.patients.DeletePatient(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.abortError(c, http.StatusNotFound, domain.ErrCodeNotFound, "patient not found", "")
			return
		}
		s.log.WithError(err).Error("Failed to delete patient")
		s.abortError(c, http.StatusInternalServerError, domain.ErrCodeDatabaseError, "failed to delete patient", "")
		return
	}

	c.Status(http.StatusNoContent)
}

// handleAddExam records an exam event and its lab results
func (s *Server) handleAddExam(c *gin.Context) {
	id, ok := s.patientID(c)
	if !ok {
		return
	}

	var exam domain.ExamRecord
	if err := c.ShouldBindJSON(&exam); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid exam payload", err.Error())
		return
	}
	if err := exam.Validate(); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrCodeValidation, "invalid exam payload", err.Error())
		return
	}
	exam.PatientID = id
	if exam.CollectedAt.IsZero() {
		exam.CollectedAt = time.Now().UTC()
	}
	// Derive the abnormal flag from the reference range when the analyzer
	// did not set it.
	for i := range exam.Labs {
		exam.Labs[i].Abnormal = exam.Labs[i].IsAbnormal()
	}

	if _, err := s.patients.GetPatient(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.abortError(c, http.StatusNotFound, domain.ErrCodeNotFound, "patient not found", "")
			return
		}
		s.log.WithError(err).Error("Failed to verify patient")
		s.abortError(c, http.StatusInternalServerError, domain.ErrCodeDatabaseError, "failed to verify patient", "")
		return
	}

	if err := s.patients.AddExam(c.Request.Context(), &exam); err != nil {
		s.log.WithError(err).Error("Failed to record exam")
		s.abortError(c, http.StatusInternalServerError, domain.ErrCodeDatabaseError, "failed to record exam", "")
		return
	}

	c.JSON(http.StatusCreated, exam)
}

// handleAddVitals records a vital-sign reading
func (s *Server) handleAddVitals(c *gin.Context) {
	id, ok := s.patientID(c)
	if !ok {
		return
	}

	var reading domain.VitalSignReading
	if err := c.ShouldBindJSON(&reading); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid vital signs payload", err.Error())
		return
	}
	if err := reading.Validate(); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrCodeValidation, "invalid vital signs payload", err.Error())
		return
	}
	if reading.RecordedAt.IsZero() {
		reading.RecordedAt = time.Now().UTC()
	}

	if _, err := s.patients.GetPatient(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.abortError(c, http.StatusNotFound, domain.ErrCodeNotFound, "patient not found", "")
			return
		}
		s.log.WithError(err).Error("Failed to verify patient")
		s.abortError(c, http.StatusInternalServerError, domain.ErrCodeDatabaseError, "failed to verify patient", "")
		return
	}

	if err := s.patients.AddVitalSigns(c.Request.Context(), id, &reading); err != nil {
		s.log.WithError(err).Error("Failed to record vital signs")
		s.abortError(c, http.StatusInternalServerError, domain.ErrCodeDatabaseError, "failed to record vital signs", "")
		return
	}

	c.JSON(http.StatusCreated, reading)
}

// handleComputeScores computes every supported score for the patient's
// current snapshot and records each run in the history store.
func (s *Server) handleComputeScores(c *gin.Context) {
	id, ok := s.patientID(c)
	if !ok {
		return
	}

	snap, err := s.patients.LoadSnapshot(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.abortError(c, http.StatusNotFound, domain.ErrCodeNotFound, "patient not found", "")
			return
		}
		s.log.WithError(err).Error("Failed to load patient snapshot")
		s.abortError(c, http.StatusInternalServerError, domain.ErrCodeDatabaseError, "failed to load patient snapshot", "")
		return
	}

	computedAt := time.Now().UTC()
	results := s.engine.ComputeAll(c.Request.Context(), snap)
	for i := range results {
		s.recordRun(c, id.String(), &results[i], computedAt)
	}

	resp := scoresResponse{
		PatientID:  id.String(),
		ComputedAt: computedAt,
		Scores:     results,
	}
	if s.shouldVerify(c) {
		for i := range results {
			resp.CrossChecks = append(resp.CrossChecks, s.crossCheck.Check(c.Request.Context(), snap, &results[i]))
		}
	}

	c.JSON(http.StatusOK, resp)
}

// handleComputeScore computes a single score for the patient's current
// snapshot and records the run in the history store.
func (s *Server) handleComputeScore(c *gin.Context) {
	id, ok := s.patientID(c)
	if !ok {
		return
	}

	kind, err := domain.ParseScoreKind(c.Param("kind"))
	if err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "unknown score kind", err.Error())
		return
	}

	snap, err := s.patients.LoadSnapshot(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.abortError(c, http.StatusNotFound, domain.ErrCodeNotFound, "patient not found", "")
			return
		}
		s.log.WithError(err).Error("Failed to load patient snapshot")
		s.abortError(c, http.StatusInternalServerError, domain.ErrCodeDatabaseError, "failed to load patient snapshot", "")
		return
	}

	result, err := s.engine.Compute(c.Request.Context(), kind, snap)
	if err != nil {
		s.log.WithError(err).Error("Score computation failed")
		s.abortError(c, http.StatusInternalServerError, domain.ErrCodeScoring, "score computation failed", "")
		return
	}

	computedAt := time.Now().UTC()
	s.recordRun(c, id.String(), result, computedAt)

	resp := scoreResponse{
		PatientID:  id.String(),
		ComputedAt: computedAt,
		Score:      result,
	}
	if s.shouldVerify(c) {
		resp.CrossCheck = s.crossCheck.Check(c.Request.Context(), snap, result)
	}

	c.JSON(http.StatusOK, resp)
}

// handleStatelessScore computes a score for a snapshot supplied in the
// request body. Nothing is persisted.
func (s *Server) handleStatelessScore(c *gin.Context) {
	kind, err := domain.ParseScoreKind(c.Param("kind"))
	if err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "unknown score kind", err.Error())
		return
	}

	var snap domain.PatientSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid snapshot payload", err.Error())
		return
	}
	if err := snap.Validate(); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrCodeValidation, "invalid snapshot", err.Error())
		return
	}

	result, err := s.engine.Compute(c.Request.Context(), kind, &snap)
	if err != nil {
		s.log.WithError(err).Error("Score computation failed")
		s.abortError(c, http.StatusInternalServerError, domain.ErrCodeScoring, "score computation failed", "")
		return
	}

	resp := scoreResponse{
		ComputedAt: time.Now().UTC(),
		Score:      result,
	}
	if s.shouldVerify(c) {
		resp.CrossCheck = s.crossCheck.Check(c.Request.Context(), &snap, result)
	}

	c.JSON(http.StatusOK, resp)
}

// handleHistory returns persisted score runs for a patient. With
// ?kind=<score> only the most recent run of that score is returned.
func (s *Server) handleHistory(c *gin.Context) {
	id, ok := s.patientID(c)
	if !ok {
		return
	}

	if kindParam := c.Query("kind"); kindParam != "" {
		kind, err := domain.ParseScoreKind(kindParam)
		if err != nil {
			s.abortError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "unknown score kind", err.Error())
			return
		}
		run, err := s.runs.Latest(c.Request.Context(), id.String(), kind.String())
		if err != nil {
			s.log.WithError(err).Error("Failed to query score history")
			s.abortError(c, http.StatusInternalServerError, domain.ErrCodeDatabaseError, "failed to query score history", "")
			return
		}
		if run == nil {
			s.abortError(c, http.StatusNotFound, domain.ErrCodeNotFound, "no recorded runs for score", "")
			return
		}
		c.JSON(http.StatusOK, run)
		return
	}

	limit, offset := pageParams(c)
	list, err := s.runs.ListByPatient(c.Request.Context(), id.String(), limit, offset)
	if err != nil {
		s.log.WithError(err).Error("Failed to query score history")
		s.abortError(c, http.StatusInternalServerError, domain.ErrCodeDatabaseError, "failed to query score history", "")
		return
	}

	c.JSON(http.StatusOK, historyResponse{
		PatientID: id.String(),
		Limit:     limit,
		Offset:    offset,
		Runs:      list,
	})
}

// recordRun appends a score run to the history store. History writes are
// best-effort: a failed append is logged but never fails the scoring request.
func (s *Server) recordRun(c *gin.Context, patientID string, result *domain.ScoreResult, at time.Time) {
	if s.runs == nil {
		return
	}
	run := history.NewScoreRun(patientID, result, at)
	if err := s.runs.Save(c.Request.Context(), run); err != nil {
		s.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"score_kind": result.Kind,
		}).WithError(err).Warn("Failed to record score run")
	}
}

// shouldVerify reports whether the request asked for a remote cross-check
// and a remote client is configured.
func (s *Server) shouldVerify(c *gin.Context) bool {
	return s.crossCheck != nil && c.Query("verify") == "true"
}
