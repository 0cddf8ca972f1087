package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
)

const (
	defaultStreamInterval = 15 * time.Second
	minStreamInterval     = 1 * time.Second
	streamWriteTimeout    = 10 * time.Second
)

type streamFrame struct {
	PatientID  string               `json:"patient_id"`
	ComputedAt time.Time            `json:"computed_at"`
	Scores     []domain.ScoreResult `json:"scores"`
}

// handleScoreStream upgrades the connection to a websocket and pushes a
// full score recomputation immediately and then on a fixed interval until
// the client disconnects. The push interval comes from ?interval=<seconds>.
func (s *Server) handleScoreStream(c *gin.Context) {
	id, ok := s.patientID(c)
	if !ok {
		return
	}

	// Reject unknown patients before upgrading.
	if _, err := s.patients.GetPatient(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.abortError(c, http.StatusNotFound, domain.ErrCodeNotFound, "patient not found", "")
			return
		}
		s.log.WithError(err).Error("Failed to verify patient")
		s.abortError(c, http.StatusInternalServerError, domain.ErrCodeDatabaseError, "failed to verify patient", "")
		return
	}

	interval := defaultStreamInterval
	if v, err := strconv.Atoi(c.Query("interval")); err == nil && v > 0 {
		interval = time.Duration(v) * time.Second
	}
	if interval < minStreamInterval {
		interval = minStreamInterval
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Read pump: we never expect client messages, but reading is the only
	// way to observe the close handshake.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	push := func() error {
		snap, err := s.patients.LoadSnapshot(ctx, id)
		if err != nil {
			return err
		}
		frame := streamFrame{
			PatientID:  id.String(),
			ComputedAt: time.Now().UTC(),
			Scores:     s.engine.ComputeAll(ctx, snap),
		}
		if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
			return err
		}
		return conn.WriteJSON(frame)
	}

	if err := push(); err != nil {
		s.log.WithError(err).Debug("Score stream ended")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := push(); err != nil {
				s.log.WithError(err).Debug("Score stream ended")
				return
			}
		}
	}
}
