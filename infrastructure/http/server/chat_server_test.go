package server

import (
	"batepapo/contract"
	"batepapo/domain"
	"batepapo/errors"
	"batepapo/mocks"
	"batepapo/moderation"
	"batepapo/observability"
	"batepapo/repositories"
	"batepapo/runtime/workers"
	"batepapo/services"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var start = time.Date(2024, 6, 1, 20, 15, 30, 0, time.UTC)

type harness struct {
	t            *testing.T
	srv          *httptest.Server
	clock        *contract.ManualClock
	participants *repositories.ParticipantRepository
	messages     *repositories.MessageRepository
	sweeper      *workers.SweeperWorker
	metrics      *observability.Metrics
}

func newHarness(t *testing.T, limits RateLimit) *harness {
	t.Helper()
	log := slog.Default()
	clock := contract.NewManualClock(start)
	participants := repositories.NewParticipantRepository()
	messages := repositories.NewMessageRepository(log)
	metrics := observability.NewMetrics(nil)
	service := services.NewChatService(log, participants, messages, moderation.NewSanitizer(nil), clock, metrics)
	srv := httptest.NewServer(NewChatServer(log, service, metrics).Handler(limits))
	t.Cleanup(srv.Close)
	return &harness{
		t:            t,
		srv:          srv,
		clock:        clock,
		participants: participants,
		messages:     messages,
		sweeper:      workers.NewSweeperWorker(log, participants, messages, clock, metrics, 15*time.Second, 10*time.Second),
		metrics:      metrics,
	}
}

func (h *harness) do(method, path, user, body string) (int, []byte) {
	h.t.Helper()
	r, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	require.NoError(h.t, err)
	if user != "" {
		r.Header.Set(IdentityHeader, user)
	}
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.srv.Client().Do(r)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp.StatusCode, payload
}

func (h *harness) messagesFor(viewer, query string) []MessageResponse {
	h.t.Helper()
	code, body := h.do(http.MethodGet, "/messages"+query, viewer, "")
	require.Equal(h.t, http.StatusOK, code)
	var out []MessageResponse
	require.NoError(h.t, json.Unmarshal(body, &out))
	return out
}

func texts(messages []MessageResponse) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Text)
	}
	return out
}

func TestChatServer_Session_Scenario(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, RateLimit{})

	// Given alice joins
	code, body := h.do(http.MethodPost, "/participants", "", `{"name":"alice"}`)
	req.Equal(http.StatusCreated, code)
	var joined ParticipantResponse
	req.NoError(json.Unmarshal(body, &joined))
	req.Equal(ParticipantResponse{Name: "alice", LastStatus: start.UnixMilli()}, joined)

	// Then her arrival is announced
	all := h.messagesFor("bob", "")
	req.Len(all, 1)
	req.Equal(domain.JoinedText, all[0].Text)
	req.Equal(domain.StatusMessage, all[0].Type)
	req.Equal("20:15:30", all[0].Time)

	// When she joins again
	code, _ = h.do(http.MethodPost, "/participants", "", `{"name":"alice"}`)
	req.Equal(http.StatusConflict, code)

	// When alice broadcasts then whispers to bob
	code, body = h.do(http.MethodPost, "/messages", "alice", `{"to":"all","text":"hi","type":"message"}`)
	req.Equal(http.StatusCreated, code)
	var hi MessageResponse
	req.NoError(json.Unmarshal(body, &hi))
	code, _ = h.do(http.MethodPost, "/messages", "alice", `{"to":"bob","text":"secret","type":"private_message"}`)
	req.Equal(http.StatusCreated, code)

	// Then bob sees both and carol only the public one
	req.Contains(texts(h.messagesFor("bob", "")), "hi")
	req.Contains(texts(h.messagesFor("bob", "")), "secret")
	req.Contains(texts(h.messagesFor("carol", "")), "hi")
	req.NotContains(texts(h.messagesFor("carol", "")), "secret")

	// When carol tries to delete alice's message
	code, _ = h.do(http.MethodDelete, "/messages/"+hi.ID, "carol", "")
	req.Equal(http.StatusUnauthorized, code)

	// When alice deletes it
	code, _ = h.do(http.MethodDelete, "/messages/"+hi.ID, "alice", "")
	req.Equal(http.StatusOK, code)
	id, err := uuid.Parse(hi.ID)
	req.NoError(err)
	_, err = h.messages.FindByID(id)
	req.ErrorIs(err, errors.ErrMessageNotFound)
	code, _ = h.do(http.MethodDelete, "/messages/"+hi.ID, "alice", "")
	req.Equal(http.StatusNotFound, code)

	// When alice stays silent for 10s and the sweeper runs
	h.clock.Advance(10 * time.Second)
	_, err = h.sweeper.Sweep()
	req.NoError(err)

	// Then she is gone and her departure is announced
	code, body = h.do(http.MethodGet, "/participants", "", "")
	req.Equal(http.StatusOK, code)
	req.JSONEq(`[]`, string(body))
	last := h.messagesFor("bob", "?limit=1")
	req.Len(last, 1)
	req.Equal(domain.LeftText, last[0].Text)
	req.Equal("alice", last[0].From)
	req.Equal(domain.Everyone, last[0].To)

	// And her heartbeat is refused
	code, body = h.do(http.MethodPost, "/status", "alice", "")
	req.Equal(http.StatusNotFound, code)
	req.Contains(string(body), errors.ErrSessionExpired.Error())
}

func TestChatServer_Join_Rejects_Invalid_Bodies(t *testing.T) {
	h := newHarness(t, RateLimit{})
	for _, body := range []string{`{"name":""}`, `{"name":"  "}`, `{}`, `not json`} {
		code, payload := h.do(http.MethodPost, "/participants", "", body)
		require.Equal(t, http.StatusUnprocessableEntity, code, "body=%s", body)
		require.Contains(t, string(payload), `"error"`)
	}
}

func TestChatServer_PostMessage_Errors(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, RateLimit{})

	// Unknown sender
	code, _ := h.do(http.MethodPost, "/messages", "ghost", `{"to":"all","text":"boo","type":"message"}`)
	req.Equal(http.StatusUnprocessableEntity, code)

	_, err := h.participants.Join("alice", start)
	req.NoError(err)

	// Status messages cannot be posted by clients
	code, _ = h.do(http.MethodPost, "/messages", "alice", `{"to":"all","text":"x","type":"status"}`)
	req.Equal(http.StatusUnprocessableEntity, code)

	// Malformed body
	code, _ = h.do(http.MethodPost, "/messages", "alice", `{"to":`)
	req.Equal(http.StatusUnprocessableEntity, code)
}

func TestChatServer_GetMessages_Limit(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, RateLimit{})
	_, err := h.participants.Join("alice", start)
	req.NoError(err)
	for i := 0; i < 5; i++ {
		code, _ := h.do(http.MethodPost, "/messages", "alice", fmt.Sprintf(`{"to":"all","text":"m%d","type":"message"}`, i))
		req.Equal(http.StatusCreated, code)
	}

	req.Equal([]string{"m3", "m4"}, texts(h.messagesFor("bob", "?limit=2")))
	req.Len(h.messagesFor("bob", "?limit=50"), 5)
	for _, query := range []string{"", "?limit=0", "?limit=-3", "?limit=abc"} {
		req.Len(h.messagesFor("bob", query), 5, "query=%s", query)
	}
}

func TestChatServer_Status_Refreshes_Heartbeat(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, RateLimit{})
	_, err := h.participants.Join("alice", start)
	req.NoError(err)

	h.clock.Advance(8 * time.Second)
	code, _ := h.do(http.MethodPost, "/status", "alice", "")
	req.Equal(http.StatusOK, code)

	h.clock.Advance(8 * time.Second)
	evicted, err := h.sweeper.Sweep()
	req.NoError(err)
	req.Empty(evicted)
}

func TestChatServer_Delete_Malformed_Id_Is_Not_Found(t *testing.T) {
	h := newHarness(t, RateLimit{})
	code, body := h.do(http.MethodDelete, "/messages/not-a-uuid", "alice", "")
	require.Equal(t, http.StatusNotFound, code)
	require.Contains(t, string(body), errors.ErrMessageNotFound.Error())
}

func TestChatServer_Rate_Limit_Per_Identity(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, RateLimit{RPS: 0.001, Burst: 2})

	// Given alice spends her burst
	for i := 0; i < 2; i++ {
		code, _ := h.do(http.MethodGet, "/participants", "alice", "")
		req.Equal(http.StatusOK, code)
	}

	// Then her next request is refused while bob still gets through
	code, body := h.do(http.MethodGet, "/participants", "alice", "")
	req.Equal(http.StatusTooManyRequests, code)
	req.Contains(string(body), errors.ErrRateLimited.Error())
	code, _ = h.do(http.MethodGet, "/participants", "bob", "")
	req.Equal(http.StatusOK, code)

	// And health checks are never limited
	for i := 0; i < 5; i++ {
		code, _ = h.do(http.MethodGet, "/healthz", "alice", "")
		req.Equal(http.StatusOK, code)
	}
}

func TestChatServer_Cors_Preflight(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, RateLimit{})

	r, err := http.NewRequest(http.MethodOptions, h.srv.URL+"/messages", nil)
	req.NoError(err)
	resp, err := h.srv.Client().Do(r)
	req.NoError(err)
	defer resp.Body.Close()

	req.Equal(http.StatusNoContent, resp.StatusCode)
	req.Equal("*", resp.Header.Get("Access-Control-Allow-Origin"))
	req.Contains(resp.Header.Get("Access-Control-Allow-Headers"), IdentityHeader)
}

func TestChatServer_Metrics_Count_Requests(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, RateLimit{})

	code, _ := h.do(http.MethodPost, "/participants", "", `{"name":"alice"}`)
	req.Equal(http.StatusCreated, code)
	code, _ = h.do(http.MethodPost, "/participants", "", `{"name":"alice"}`)
	req.Equal(http.StatusConflict, code)

	code, body := h.do(http.MethodGet, "/metrics", "", "")
	req.Equal(http.StatusOK, code)
	req.Contains(string(body), "batepapo_participants_joined_total 1")
	req.Contains(string(body), `batepapo_http_requests_total{code="409",route="POST /participants"} 1`)
	req.Contains(string(body), `batepapo_http_requests_total{code="201",route="POST /participants"} 1`)
}

func TestChatServer_Storage_Failure_Is_Internal_Error(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	serviceMock := mocks.NewMockIChatService(ctrl)
	srv := httptest.NewServer(NewChatServer(slog.Default(), serviceMock, nil).Handler(RateLimit{}))
	defer srv.Close()

	serviceMock.EXPECT().
		Participants().
		Return(nil, errors.StorageFailure("list participants", fmt.Errorf("disk gone"))).
		Times(1)
	serviceMock.EXPECT().
		Messages("bob", 3).
		Return([]domain.Message{}, nil).
		Times(1)

	resp, err := srv.Client().Get(srv.URL + "/participants")
	req.NoError(err)
	_ = resp.Body.Close()
	req.Equal(http.StatusInternalServerError, resp.StatusCode)

	r, err := http.NewRequest(http.MethodGet, srv.URL+"/messages?limit=3", nil)
	req.NoError(err)
	r.Header.Set(IdentityHeader, "bob")
	resp, err = srv.Client().Do(r)
	req.NoError(err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.JSONEq(`[]`, string(payload))
}
