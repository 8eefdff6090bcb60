package server

import (
	"batepapo/domain"
	"batepapo/errors"
	"batepapo/observability"
	"batepapo/services"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

// IdentityHeader carries the caller display name on every session request.
const IdentityHeader = "User"

type ParticipantResponse struct {
	Name string `json:"name"`
	// LastStatus is the last heartbeat in Unix milliseconds.
	LastStatus int64 `json:"lastStatus"`
}

type MessageResponse struct {
	ID   string             `json:"id"`
	From string             `json:"from"`
	To   string             `json:"to"`
	Text string             `json:"text"`
	Type domain.MessageType `json:"type"`
	Time string             `json:"time"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type ChatServer struct {
	chatService services.IChatService
	metrics     *observability.Metrics
	log         *slog.Logger
}

func NewChatServer(log *slog.Logger, chatService services.IChatService, metrics *observability.Metrics) *ChatServer {
	return &ChatServer{chatService: chatService, metrics: metrics, log: log}
}

// Handler builds the routed API wrapped in its middleware chain.
func (s *ChatServer) Handler(limits RateLimit) http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests, s.countRequests)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.Healthz).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(newLimiterPool(limits).middleware)
	api.HandleFunc("/participants", s.Join).Methods(http.MethodPost)
	api.HandleFunc("/participants", s.ListParticipants).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.PostMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages", s.GetMessages).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id}", s.DeleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/status", s.Status).Methods(http.MethodPost)

	return cors(r)
}

func (s *ChatServer) Join(w http.ResponseWriter, r *http.Request) {
	var body services.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, fmt.Errorf("%w: malformed body: %v", errors.ErrValidation, err))
		return
	}
	participant, err := s.chatService.Join(body.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toParticipantResponse(participant))
}

func (s *ChatServer) ListParticipants(w http.ResponseWriter, _ *http.Request) {
	participants, err := s.chatService.Participants()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, lo.Map(participants, func(item domain.Participant, _ int) ParticipantResponse {
		return toParticipantResponse(item)
	}))
}

func (s *ChatServer) PostMessage(w http.ResponseWriter, r *http.Request) {
	var body services.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, fmt.Errorf("%w: malformed body: %v", errors.ErrValidation, err))
		return
	}
	message, err := s.chatService.Send(r.Header.Get(IdentityHeader), body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toMessageResponse(message))
}

// GetMessages returns the caller's view of the message tail. A missing,
// malformed or non-positive limit returns the whole log.
func (s *ChatServer) GetMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.chatService.Messages(r.Header.Get(IdentityHeader), parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, lo.Map(messages, func(item domain.Message, _ int) MessageResponse {
		return toMessageResponse(item)
	}))
}

func (s *ChatServer) Status(w http.ResponseWriter, r *http.Request) {
	if err := s.chatService.Refresh(r.Header.Get(IdentityHeader)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *ChatServer) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	// an id that cannot name a stored message is reported like a missing one
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %q", errors.ErrMessageNotFound, mux.Vars(r)["id"]))
		return
	}
	if err = s.chatService.Delete(r.Header.Get(IdentityHeader), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *ChatServer) Healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0
	}
	return limit
}

func toParticipantResponse(p domain.Participant) ParticipantResponse {
	return ParticipantResponse{Name: p.Name, LastStatus: p.LastSeen.UnixMilli()}
}

func toMessageResponse(m domain.Message) MessageResponse {
	return MessageResponse{
		ID:   m.ID.String(),
		From: m.From,
		To:   m.To,
		Text: m.Text,
		Type: m.Type,
		Time: m.DisplayTime(),
	}
}

func (s *ChatServer) writeError(w http.ResponseWriter, err error) {
	status := errors.MapToHTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *ChatServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug("Unable to write response", "error", err)
	}
}
