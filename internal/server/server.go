// Package server exposes the event channel over WebSocket: it upgrades HTTP
// connections, binds them to durable sessions, validates inbound frames, and
// routes requests to the job manager.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rotimiadeleye/caseflow/constants"
	"github.com/rotimiadeleye/caseflow/internal/channel"
	"github.com/rotimiadeleye/caseflow/internal/entity"
	"github.com/rotimiadeleye/caseflow/internal/jobs"
	"github.com/rotimiadeleye/caseflow/internal/repository"
)

// JobFinder loads persisted jobs that the manager no longer retains.
type JobFinder interface {
	GetJob(ctx context.Context, id uuid.UUID) (entity.Job, error)
}

// Server serves the /ws endpoint.
type Server struct {
	registry *channel.Registry
	manager  *jobs.Manager
	store    JobFinder
	upgrader websocket.Upgrader
	logger   *slog.Logger
	httpSrv  *http.Server
}

func New(registry *channel.Registry, manager *jobs.Manager, store JobFinder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry: registry,
		manager:  manager,
		store:    store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: logger,
	}
}

// Handler returns the HTTP mux for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// ListenAndServe blocks serving the channel on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("server.listening", "addr", addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the listener and tears down every session.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.registry.CloseAll()
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("server.upgrade.failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess, resumed := s.registry.Resume(r.URL.Query().Get("session_id"))
	transport := channel.NewWSTransport(conn)
	sess.Attach(transport)
	s.logger.Info("server.client.connected",
		"remote", r.RemoteAddr, "session_id", sess.ID, "resumed", resumed)

	welcome, _ := json.Marshal(map[string]any{
		"session_id": sess.ID,
		"resumed":    resumed,
	})
	sess.Send(channel.Event{
		ID:      uuid.New().String(),
		Type:    constants.EventWelcome,
		Payload: welcome,
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.logger.Info("server.client.disconnected", "session_id", sess.ID, "error", err)
			// release only if this connection still owns the session; a
			// resumed connection has already replaced the transport
			if sess.DetachTransport(transport) {
				s.registry.Release(sess)
			}
			return
		}
		sess.Touch()

		if err := validateFrame(raw); err != nil {
			s.sendError(sess, "", err.Error())
			continue
		}
		var frame channel.ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.sendError(sess, "", "frame decode failed")
			continue
		}
		s.dispatch(sess, frame)
	}
}

func (s *Server) dispatch(sess *channel.Session, f channel.ClientFrame) {
	switch f.Type {
	case constants.EventAck:
		sess.HandleAck(f.EventID)
	case constants.EventHeartbeat:
		// Touch already recorded the activity
	case constants.EventQueryCase, constants.EventGenerateReport:
		s.handleSubmit(sess, f)
	case constants.EventCancelJob:
		s.handleCancel(sess, f)
	case constants.EventJobStatus:
		s.handleJobStatus(sess, f)
	}
}

type submitPayload struct {
	CaseID  string `json:"case_id"`
	Section string `json:"section"`
}

func (s *Server) handleSubmit(sess *channel.Session, f channel.ClientFrame) {
	var p submitPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		s.submitAck(sess, "", false, "payload decode failed")
		return
	}
	caseID, err := uuid.Parse(p.CaseID)
	if err != nil {
		s.submitAck(sess, "", false, "case_id must be a UUID")
		return
	}

	job, _ := s.manager.Submit(caseID, p.Section, s.emitFor(sess))
	s.submitAck(sess, job.ID.String(), true, "")
}

func (s *Server) submitAck(sess *channel.Session, jobID string, accepted bool, reason string) {
	body := map[string]any{"accepted": accepted}
	if jobID != "" {
		body["job_id"] = jobID
	}
	if reason != "" {
		body["reason"] = reason
	}
	payload, _ := json.Marshal(body)
	sess.Send(channel.Event{
		ID:          uuid.New().String(),
		Type:        constants.EventSubmitAck,
		JobID:       jobID,
		Payload:     payload,
		RequiresAck: accepted,
	})
}

type jobRefPayload struct {
	JobID string `json:"job_id"`
}

func (s *Server) handleCancel(sess *channel.Session, f channel.ClientFrame) {
	var p jobRefPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		s.sendError(sess, "", "payload decode failed")
		return
	}
	jobID, err := uuid.Parse(p.JobID)
	if err != nil {
		s.sendError(sess, "", "job_id must be a UUID")
		return
	}
	if !s.manager.Cancel(jobID) {
		s.sendError(sess, p.JobID, "job not found or already finished")
	}
	// on success the FAILED progress event reports the cancellation
}

func (s *Server) handleJobStatus(sess *channel.Session, f channel.ClientFrame) {
	var p jobRefPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		s.sendError(sess, "", "payload decode failed")
		return
	}
	jobID, err := uuid.Parse(p.JobID)
	if err != nil {
		s.sendError(sess, "", "job_id must be a UUID")
		return
	}

	job, ok := s.manager.Status(jobID)
	if !ok {
		job, ok = s.lookupPersisted(jobID)
	}
	var payload []byte
	if ok {
		payload, _ = json.Marshal(job)
	} else {
		payload, _ = json.Marshal(map[string]string{"job_id": p.JobID, "status": "not_found"})
	}
	sess.Send(channel.Event{
		ID:      uuid.New().String(),
		Type:    constants.EventJobStatusRes,
		JobID:   p.JobID,
		Payload: payload,
	})
}

// lookupPersisted answers status queries for jobs the manager has already
// evicted. Store errors other than a missing row are logged and reported as
// not found.
func (s *Server) lookupPersisted(jobID uuid.UUID) (entity.Job, bool) {
	if s.store == nil {
		return entity.Job{}, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if !errors.Is(err, repository.ErrJobNotFound) {
			s.logger.Warn("server.job_status.store", "job_id", jobID, "error", err)
		}
		return entity.Job{}, false
	}
	return job, true
}

func (s *Server) sendError(sess *channel.Session, jobID, reason string) {
	payload, _ := json.Marshal(map[string]string{"reason": reason})
	sess.Send(channel.Event{
		ID:      uuid.New().String(),
		Type:    constants.EventError,
		JobID:   jobID,
		Payload: payload,
	})
}

// emitFor bridges job progress into the session that submitted the job. Every
// transition event carries the job snapshot and its per-job sequence. Only
// terminal events demand acknowledgment; intermediate progress is
// fire-and-forget on top of the ordered buffer.
func (s *Server) emitFor(sess *channel.Session) jobs.EmitFunc {
	return func(job entity.Job, seq uint64) {
		payload, err := json.Marshal(job)
		if err != nil {
			s.logger.Error("server.progress.marshal", "job_id", job.ID, "error", err)
			return
		}
		sess.Send(channel.Event{
			ID:          uuid.New().String(),
			Type:        constants.EventProgress,
			JobID:       job.ID.String(),
			Stage:       job.State,
			Sequence:    seq,
			Payload:     payload,
			RequiresAck: job.State.Terminal(),
		})
	}
}
