package triage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"rescueline/internal/domain"
)

func geminiServer(t *testing.T, status int, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(status)
		if status != http.StatusOK {
			fmt.Fprintf(w, `{"error":{"code":%d,"message":"boom","status":"INTERNAL"}}`, status)
			return
		}
		fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, text)
	}))
}

func TestGeminiParsesFencedJSON(t *testing.T) {
	srv := geminiServer(t, http.StatusOK, "```json\n{\"severity\":\"medium\",\"advice\":\"ice it\",\"department\":\"Orthopedics\"}\n```")
	defer srv.Close()
	g := NewGemini("key", "")
	g.Endpoint = srv.URL
	res, err := g.Classify(context.Background(), "twisted ankle", true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Severity != domain.SeverityMedium || res.Department != "Orthopedics" {
		t.Fatalf("res = %+v", res)
	}
}

func TestGeminiUnknownSeverityString(t *testing.T) {
	srv := geminiServer(t, http.StatusOK, `{"severity":"CATASTROPHIC","advice":"run","department":"ER"}`)
	defer srv.Close()
	g := NewGemini("key", "")
	g.Endpoint = srv.URL
	res, err := g.Classify(context.Background(), "anything", true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Severity != domain.SeverityUnknown {
		t.Fatalf("severity = %s, want UNKNOWN", res.Severity)
	}
}

func TestGeminiErrorStatus(t *testing.T) {
	srv := geminiServer(t, http.StatusInternalServerError, "")
	defer srv.Close()
	g := NewGemini("key", "")
	g.Endpoint = srv.URL
	if _, err := g.Classify(context.Background(), "anything", true, nil); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestGeminiMalformedPayload(t *testing.T) {
	srv := geminiServer(t, http.StatusOK, "sorry, I cannot help with that")
	defer srv.Close()
	g := NewGemini("key", "")
	g.Endpoint = srv.URL
	if _, err := g.Classify(context.Background(), "anything", true, nil); err == nil {
		t.Fatal("expected error for non-JSON payload")
	}
}

func TestGeminiRequiresAPIKey(t *testing.T) {
	g := NewGemini("", "")
	if _, err := g.Classify(context.Background(), "anything", true, nil); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                    `{"a":1}`,
		"```json\n{\"a\":1}\n```":      `{"a":1}`,
		"```\n{\"a\":1}\n```":          `{"a":1}`,
		"  {\"a\":1}  ":                `{"a":1}`,
	}
	for in, want := range cases {
		if got := extractJSON(in); got != want {
			t.Errorf("extractJSON(%q) = %q, want %q", in, got, want)
		}
	}
}
