package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"rescueline/internal/config"
	"rescueline/internal/domain"
	"rescueline/internal/engine"
	"rescueline/internal/events"
	"rescueline/internal/store"
	"rescueline/internal/triage"
)

type fixedClassifier struct{}

func (fixedClassifier) Classify(context.Context, string, bool, *domain.PatientProfile) (domain.TriageResult, error) {
	return domain.TriageResult{Severity: domain.SeverityHigh, Advice: "keep still", Department: "Emergency Medicine"}, nil
}

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	mem := store.NewMemory()
	cfg := config.Default()
	eng := engine.New(mem, events.Writer{}, cfg)
	eng.Intn = func(n int) int { return 2 }

	handler, err := New(Config{
		Engine:     eng,
		Store:      mem,
		Classifier: triage.Safe{Inner: fixedClassifier{}},
		BasePath:   "/v0",
		Auth: AuthConfig{
			JWTSecret:  "test-secret",
			AccessCode: "1920",
			SessionTTL: time.Hour,
		},
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func responderToken(t *testing.T, srv *testServer) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/responder", map[string]any{
		"access_code": "1920",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var login ResponderLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	return login.Token
}

func TestRescueLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests", map[string]any{
		"symptoms":  "chest pain",
		"conscious": true,
	}, nil)
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", createRes.StatusCode, string(data))
	}
	var created RequestResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if created.Status != domain.StatusDispatched {
		t.Fatalf("status = %s, want DISPATCHED", created.Status)
	}
	if created.ETAMinutes < 5 || created.ETAMinutes > 15 {
		t.Fatalf("eta %d outside [5,15]", created.ETAMinutes)
	}
	if created.Triage == nil || created.Triage.Severity != domain.SeverityHigh {
		t.Fatalf("triage = %+v", created.Triage)
	}

	token := responderToken(t, srv)
	auth := map[string]string{"Authorization": "Bearer " + token}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests/"+created.ID+"/arrive", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("arrive status %d: %s", res.StatusCode, string(data))
	}
	var arrived RequestResponse
	if err := json.Unmarshal(data, &arrived); err != nil {
		t.Fatal(err)
	}
	if arrived.Status != domain.StatusArrived || arrived.ETAMinutes != 0 {
		t.Fatalf("arrived = %+v", arrived)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/requests/active", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("active status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests/"+created.ID+"/complete", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/requests/active", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("active after completion status %d, want 404", res.StatusCode)
	}
}

func TestSecondSubmissionConflicts(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests", map[string]any{"symptoms": "first"}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests", map[string]any{"symptoms": "second"}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status %d, want 409: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Code != "active_conflict" {
		t.Fatalf("code = %q, want active_conflict", envelope.Error.Code)
	}
}

func TestResponderActionsRequireAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests", map[string]any{"symptoms": "burn"}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created RequestResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatal(err)
	}

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests/"+created.ID+"/arrive", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated arrive status %d, want 401", res.StatusCode)
	}

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests/"+created.ID+"/arrive", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token arrive status %d, want 401", res.StatusCode)
	}
}

func TestInvalidAccessCodeRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, _ := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/responder", map[string]any{
		"access_code": "0000",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", res.StatusCode)
	}
}

func TestInvalidTransitionIsUnprocessable(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests", map[string]any{"symptoms": "fracture"}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created RequestResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatal(err)
	}
	token := responderToken(t, srv)
	auth := map[string]string{"Authorization": "Bearer " + token}

	if res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests/"+created.ID+"/arrive", nil, auth); res.StatusCode != http.StatusOK {
		t.Fatalf("arrive status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests/"+created.ID+"/arrive", nil, auth)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("code = %q, want invalid_transition", envelope.Error.Code)
	}
}

func TestProfileRoundTripAndHistory(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/profile", map[string]any{
		"full_name": "Ana Lopez",
		"allergies": "penicillin",
		"contact":   map[string]any{"name": "Luis", "phone": "123", "relation": "brother"},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put profile status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests", map[string]any{
		"symptoms":    "rash",
		"use_profile": true,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created RequestResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatal(err)
	}
	if created.Victim.ProfileData == nil || created.Victim.ProfileData.Allergies != "penicillin" {
		t.Fatalf("snapshot = %+v", created.Victim.ProfileData)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/history", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var history []RequestResponse
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].ID != created.ID {
		t.Fatalf("history = %+v", history)
	}
}

func TestEmptySymptomsBadRequest(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, _ := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/requests", map[string]any{"symptoms": "  "}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", res.StatusCode)
	}
}
