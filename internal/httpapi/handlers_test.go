package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dialer-engine/internal/agents"
	"dialer-engine/internal/auth"
	"dialer-engine/internal/config"
	"dialer-engine/internal/contacts"
	"dialer-engine/internal/dialqueue"
	"dialer-engine/internal/disposition"
	"dialer-engine/internal/gateway"
	"dialer-engine/internal/records"
	"dialer-engine/internal/session"

	"github.com/gin-gonic/gin"
)

type stubDialer struct{}

func (stubDialer) Name() string                          { return "stub" }
func (stubDialer) HealthCheck(ctx context.Context) error { return nil }
func (stubDialer) Dial(ctx context.Context, req gateway.DialRequest) (gateway.DialResult, error) {
	return gateway.DialResult{ExternalCallID: "ext-" + req.SessionID}, nil
}

type fakeTransferrer struct {
	err  error
	reqs []gateway.TransferRequest
}

func (f *fakeTransferrer) Transfer(ctx context.Context, req gateway.TransferRequest) error {
	if f.err != nil {
		return f.err
	}
	f.reqs = append(f.reqs, req)
	return nil
}

type apiStack struct {
	router   *gin.Engine
	authMgr  *auth.Manager
	repo     *contacts.MemoryRepo
	locks    *contacts.LockManager
	sessions *session.Manager
	transfer *fakeTransferrer
}

func newAPIStack(t *testing.T) *apiStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authMgr, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: 15 * time.Minute})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}

	repo := contacts.NewMemoryRepo()
	locks := contacts.NewLockManager(repo, nil, nil, time.Hour, time.Minute, nil)
	sched := dialqueue.NewScheduler(repo, locks, dialqueue.Policy{}, nil)
	sessions := session.NewManager(stubDialer{}, locks, sched, nil, 0, nil)
	locks.SetGuard(sessions)

	controller := agents.NewController(sched, sessions, nil, nil, 1, time.Millisecond, 10*time.Millisecond, nil)
	sessions.SetNotifier(controller)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	controller.Start(ctx)

	finalizer := disposition.NewFinalizer(sessions, records.NewMemoryStore(), nil, nil, nil)

	transfer := &fakeTransferrer{}
	h := Handlers{Agents: controller, Sessions: sessions, Finalizer: finalizer, Transfer: transfer}
	r := gin.New()
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(authMgr))
	{
		v1.POST("/agents/:agent_id/status", h.SetAgentStatus)
		v1.GET("/agents/:agent_id", h.GetAgent)
		v1.GET("/sessions/:session_id", h.GetSession)
		v1.POST("/sessions/:session_id/end", h.EndSession)
		v1.POST("/sessions/:session_id/transfer", h.TransferSession)
		v1.POST("/sessions/:session_id/finalize", h.FinalizeSession)
		v1.GET("/dispositions", h.ListDispositions)
	}

	return &apiStack{router: r, authMgr: authMgr, repo: repo, locks: locks, sessions: sessions, transfer: transfer}
}

func (s *apiStack) token(t *testing.T, agentID, role string) string {
	t.Helper()
	tok, err := s.authMgr.Issue(time.Now(), agentID, role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (s *apiStack) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// originate seeds a contact, locks it, and places a call for agent-1.
func (s *apiStack) originate(t *testing.T, contactID string) session.Session {
	t.Helper()
	ctx := context.Background()
	c := contacts.Contact{
		ID:            contactID,
		CampaignID:    "camp-1",
		Phone:         "+15550001111",
		Status:        contacts.StatusQueued,
		NextAttemptAt: time.Now().Add(-time.Minute),
		EnqueuedAt:    time.Now(),
	}
	if err := s.repo.Put(ctx, c); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tok, err := s.locks.Acquire(ctx, contactID, "agent-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	sess, err := s.sessions.Originate(ctx, c, tok, "agent-1")
	if err != nil {
		t.Fatalf("originate: %v", err)
	}
	return sess
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	s := newAPIStack(t)
	w := s.do(t, http.MethodGet, "/v1/dispositions", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSetAgentStatus_OwnershipAndValidation(t *testing.T) {
	s := newAPIStack(t)
	agentTok := s.token(t, "agent-1", auth.RoleAgent)
	supTok := s.token(t, "sup-1", auth.RoleSupervisor)

	// Another agent's state is off limits.
	w := s.do(t, http.MethodPost, "/v1/agents/agent-2/status", agentTok, `{"status":"away"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}

	// Supervisors may act for anyone.
	w = s.do(t, http.MethodPost, "/v1/agents/agent-2/status", supTok, `{"status":"away"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Available without a campaign is a validation failure.
	w = s.do(t, http.MethodPost, "/v1/agents/agent-1/status", agentTok, `{"status":"available"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}

	// Busy is engine-owned.
	w = s.do(t, http.MethodPost, "/v1/agents/agent-1/status", agentTok, `{"status":"busy"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/v1/agents/agent-1/status", agentTok, `{"status":"available","campaign_id":"camp-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var a agents.Agent
	if err := json.Unmarshal(w.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Status != agents.StatusAvailable || a.CampaignID != "camp-1" {
		t.Fatalf("unexpected agent: %+v", a)
	}
}

func TestGetSession_OwnershipEnforced(t *testing.T) {
	s := newAPIStack(t)
	sess := s.originate(t, "c-1")

	w := s.do(t, http.MethodGet, "/v1/sessions/"+sess.ID, s.token(t, "agent-1", auth.RoleAgent), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/v1/sessions/"+sess.ID, s.token(t, "agent-2", auth.RoleAgent), "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/v1/sessions/nope", s.token(t, "agent-1", auth.RoleAgent), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestEndSession_StateHandling(t *testing.T) {
	s := newAPIStack(t)
	sess := s.originate(t, "c-1")
	tok := s.token(t, "agent-1", auth.RoleAgent)

	// Still ringing: nothing to hang up.
	w := s.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/end", tok, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}

	if err := s.sessions.HandleGatewayEvent(context.Background(), gateway.Event{SessionID: sess.ID, Type: gateway.EventAnswered, Seq: 1}); err != nil {
		t.Fatalf("answered: %v", err)
	}

	w = s.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/end", tok, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got session.Session
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.State != session.StateWrapUp {
		t.Fatalf("expected wrap_up, got %s", got.State)
	}
}

func TestTransferSession(t *testing.T) {
	s := newAPIStack(t)
	sess := s.originate(t, "c-1")
	tok := s.token(t, "agent-1", auth.RoleAgent)

	// Only answered calls can be transferred.
	w := s.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/transfer", tok, `{"target":"+15552223333"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while ringing, got %d: %s", w.Code, w.Body.String())
	}

	if err := s.sessions.HandleGatewayEvent(context.Background(), gateway.Event{SessionID: sess.ID, Type: gateway.EventAnswered, Seq: 1}); err != nil {
		t.Fatalf("answered: %v", err)
	}

	w = s.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/transfer", tok, `{"target":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without target, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/transfer", tok, `{"target":"+15552223333"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(s.transfer.reqs) != 1 || s.transfer.reqs[0].ExternalCallID != sess.ExternalCallID {
		t.Fatalf("unexpected transfer requests: %+v", s.transfer.reqs)
	}

	// A gateway without the capability reports 501, not a silent no-op.
	s.transfer.err = gateway.ErrCapabilityUnavailable
	w = s.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/transfer", tok, `{"target":"+15552223333"}`)
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d: %s", w.Code, w.Body.String())
	}
}

func TestFinalizeSession_EndToEnd(t *testing.T) {
	s := newAPIStack(t)
	sess := s.originate(t, "c-1")
	tok := s.token(t, "agent-1", auth.RoleAgent)
	ctx := context.Background()

	_ = s.sessions.HandleGatewayEvent(ctx, gateway.Event{SessionID: sess.ID, Type: gateway.EventAnswered, Seq: 1})
	_ = s.sessions.HandleGatewayEvent(ctx, gateway.Event{SessionID: sess.ID, Type: gateway.EventCompleted, Seq: 2})

	// Unknown disposition is a validation error with a code.
	w := s.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/finalize", tok, `{"disposition":"Very Interested"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	var verr struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &verr)
	if verr.Code != disposition.CodeUnknownDisposition {
		t.Fatalf("expected unknown_disposition, got %q", verr.Code)
	}

	w = s.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/finalize", tok, `{"disposition":"interested"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var first disposition.FinalizeResult
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !first.Created || first.Record.Disposition != "Interested" {
		t.Fatalf("unexpected result: %+v", first)
	}

	// Retry returns the original record with 200.
	w = s.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/finalize", tok, `{"disposition":"Not Interested"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on retry, got %d: %s", w.Code, w.Body.String())
	}
	var second disposition.FinalizeResult
	_ = json.Unmarshal(w.Body.Bytes(), &second)
	if second.Created || second.Record.ID != first.Record.ID {
		t.Fatalf("retry must return the original record: %+v", second)
	}

	// The contact is retired and unlocked.
	c, err := s.repo.Get(ctx, "c-1")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if c.Status != contacts.StatusContacted || c.LockOwner != "" {
		t.Fatalf("expected retired unlocked contact, got %+v", c)
	}
}

func TestListDispositions(t *testing.T) {
	s := newAPIStack(t)
	w := s.do(t, http.MethodGet, "/v1/dispositions", s.token(t, "agent-1", auth.RoleAgent), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out struct {
		Dispositions []disposition.Disposition `json:"dispositions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Dispositions) == 0 {
		t.Fatalf("expected a non-empty catalog")
	}
}
