package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/healthsphere/healthsphere/internal/brain"
	"github.com/healthsphere/healthsphere/internal/config"
	"github.com/healthsphere/healthsphere/internal/conversation"
	"github.com/healthsphere/healthsphere/internal/observability"
	"github.com/healthsphere/healthsphere/internal/protocol"
	"github.com/healthsphere/healthsphere/internal/report"
	"github.com/healthsphere/healthsphere/internal/session"
	"github.com/healthsphere/healthsphere/internal/store"
)

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	store    store.Store
	brain    brain.Adapter
	reports  *report.Generator
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, st store.Store, adapter brain.Adapter, reports *report.Generator, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		store:    st,
		brain:    adapter,
		reports:  reports,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the same
				// origin, so another site cannot drive a patient's consultation if
				// the service is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/consultation/session", s.handleCreateSession)
	r.Get("/v1/consultation/sessions", s.handleListSessions)
	r.Get("/v1/consultation/session/{id}", s.handleGetSession)
	r.Post("/v1/consultation/session/{id}/end", s.handleEndSession)
	r.Post("/v1/consultation/session/{id}/report", s.handleGenerateReport)
	r.Get("/v1/consultation/session/ws", s.handleSessionWS)
	r.Get("/v1/consultation/specialists", s.handleListSpecialists)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.CreatedBy) == "" {
		req.CreatedBy = "anonymous"
	}
	if strings.TrimSpace(req.SpecialistID) == "" {
		req.SpecialistID = s.cfg.DefaultSpecialist
	}

	sess := s.sessions.Create(req.CreatedBy, req.Notes, req.SpecialistID)

	if err := s.store.CreateSession(r.Context(), store.SessionRecord{
		SessionID:    sess.ID,
		CreatedBy:    sess.CreatedBy,
		Notes:        sess.Notes,
		SpecialistID: sess.SpecialistID,
		CreatedAt:    sess.StartedAt,
	}); err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		CreatedBy:       sess.CreatedBy,
		Notes:           sess.Notes,
		SpecialistID:    sess.SpecialistID,
		Status:          sess.Status,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := s.store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	createdBy := strings.TrimSpace(r.URL.Query().Get("created_by"))
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.store.ListSessions(r.Context(), createdBy, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": records})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	text, err := s.reports.Generate(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if errors.Is(err, report.ErrEmptyConversation) {
		respondError(w, http.StatusConflict, "empty_conversation", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusBadGateway, "report_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"report":     text,
	})
}

func (s *Server) handleListSpecialists(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"specialists": brain.Specialists()})
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if sess.Status != session.StatusActive {
		respondError(w, http.StatusConflict, "session_ended", "session is no longer active")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	send := func(msg any) {
		select {
		case outbound <- msg:
		default:
			// Keep websocket writes single-threaded; drop if the queue is saturated.
		}
	}

	engine := conversation.NewEngine(conversation.Config{
		SessionID:        sessionID,
		PersonaPrompt:    brain.PersonaPrompt(sess.SpecialistID),
		SilenceWindow:    s.cfg.SilenceWindow,
		ReplyTimeout:     s.cfg.ReplyTimeout,
		RedactBeforeSave: s.cfg.RedactPII,
		Brain:            s.brain,
		Relay:            s.store.SaveConversation,
		Metrics:          s.metrics,
	}, conversation.Hooks{
		OnTurn: func(turn conversation.Turn) {
			send(protocol.TurnAppended{
				Type:      protocol.TypeTurnAppended,
				SessionID: sessionID,
				Turn:      turn,
			})
		},
		OnError: func(code, detail string, retryable bool) {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      code,
				Source:    "brain",
				Retryable: retryable,
				Detail:    detail,
			})
		},
	})
	defer func() {
		if engine.Active() {
			engine.Stop()
			s.metrics.ActiveCalls.Dec()
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		if id, ok := clientSessionIDOf(parsed); ok && id != sessionID {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "session_mismatch",
				Source:    "gateway",
				Retryable: false,
				Detail:    "message session_id does not match this connection",
			})
			continue
		}
		if err := s.sessions.Touch(sessionID); err != nil {
			// The session ended or expired outside this connection. Stop the
			// engine so no further transcripts reach the brain or the store.
			if engine.Active() {
				engine.Stop()
				s.metrics.ActiveCalls.Dec()
			}
			send(protocol.CallState{Type: protocol.TypeCallState, SessionID: sessionID, State: "ended"})
			continue
		}

		switch msg := parsed.(type) {
		case protocol.TranscriptUpdate:
			engine.HandleTranscript(msg.Text, msg.IsFinal)
		case protocol.CallControl:
			switch msg.Action {
			case protocol.ActionStart:
				if !engine.Active() {
					engine.Start()
					s.metrics.ActiveCalls.Inc()
				}
				send(protocol.CallState{Type: protocol.TypeCallState, SessionID: sessionID, State: "active"})
			case protocol.ActionEnd:
				if engine.Active() {
					engine.Stop()
					s.metrics.ActiveCalls.Dec()
				}
				_, _ = s.sessions.End(sessionID)
				send(protocol.CallState{Type: protocol.TypeCallState, SessionID: sessionID, State: "ended"})
			}
		}
	}

	cancel()
	<-writerDone
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func clientSessionIDOf(v any) (string, bool) {
	switch m := v.(type) {
	case protocol.TranscriptUpdate:
		return m.SessionID, true
	case protocol.CallControl:
		return m.SessionID, true
	default:
		return "", false
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.TranscriptUpdate:
		return m.Type, true
	case protocol.CallControl:
		return m.Type, true
	case protocol.TurnAppended:
		return m.Type, true
	case protocol.CallState:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
