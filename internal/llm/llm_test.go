package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pavelanni/casecoach/internal/model"
)

// fakeOpenAI serves the two endpoints the client uses.
func fakeOpenAI(t *testing.T, content string, status int) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/models":
			_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"test-model","object":"model"}]}`))
		case "/v1/chat/completions":
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode request: %v", err)
			}
			requests = append(requests, body)
			if status != http.StatusOK {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
				return
			}
			resp := map[string]any{
				"id":     "chatcmpl-1",
				"object": "chat.completion",
				"model":  "test-model",
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": content},
				}},
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func testRequest() DebriefRequest {
	return DebriefRequest{
		Title:      "All-Purpose Tires",
		Category:   "Break-even",
		Score:      100,
		Milestones: []string{"hasClarified"},
		Messages: []model.Message{
			{Role: model.RoleInterviewer, Text: "What would you like to know?"},
			{Role: model.RoleStudent, Text: "What is the client's objective?"},
		},
	}
}

func TestDebrief(t *testing.T) {
	content := `{"summary":"Solid case.","strengths":["Clear objective question"," "],"improvements":["State assumptions"]}`
	srv, requests := fakeOpenAI(t, content, http.StatusOK)
	c := New(srv.URL+"/v1", "test-key", "test-model")

	got, err := c.Debrief(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Debrief: %v", err)
	}
	if got.Summary != "Solid case." {
		t.Errorf("Summary = %q", got.Summary)
	}
	if len(got.Strengths) != 1 || got.Strengths[0] != "Clear objective question" {
		t.Errorf("Strengths = %q", got.Strengths)
	}
	if len(got.Improvements) != 1 {
		t.Errorf("Improvements = %q", got.Improvements)
	}

	if len(*requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(*requests))
	}
	req := (*requests)[0]
	if req["model"] != "test-model" {
		t.Errorf("model = %v", req["model"])
	}
	msgs, _ := req["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	system, _ := msgs[0].(map[string]any)
	if !strings.Contains(system["content"].(string), "All-Purpose Tires") {
		t.Error("system prompt should name the case")
	}
	user, _ := msgs[1].(map[string]any)
	if !strings.Contains(user["content"].(string), "Candidate: What is the client's objective?") {
		t.Errorf("user message = %v", user["content"])
	}
}

func TestDebriefErrors(t *testing.T) {
	t.Run("bad json", func(t *testing.T) {
		srv, _ := fakeOpenAI(t, "not json", http.StatusOK)
		c := New(srv.URL+"/v1", "k", "m")
		if _, err := c.Debrief(context.Background(), testRequest()); err == nil || !strings.Contains(err.Error(), "parse LLM response") {
			t.Errorf("error = %v, want parse error", err)
		}
	})
	t.Run("server error", func(t *testing.T) {
		srv, _ := fakeOpenAI(t, "", http.StatusInternalServerError)
		c := New(srv.URL+"/v1", "k", "m")
		if _, err := c.Debrief(context.Background(), testRequest()); err == nil || !strings.Contains(err.Error(), "LLM API call") {
			t.Errorf("error = %v, want API error", err)
		}
	})
	t.Run("unknown variant", func(t *testing.T) {
		srv, requests := fakeOpenAI(t, "{}", http.StatusOK)
		c := New(srv.URL+"/v1", "k", "m")
		req := testRequest()
		req.Variant = "lenient"
		if _, err := c.Debrief(context.Background(), req); err == nil {
			t.Error("expected error for unknown variant")
		}
		if len(*requests) != 0 {
			t.Error("no request should be sent for an unknown variant")
		}
	})
}

func TestPing(t *testing.T) {
	srv, _ := fakeOpenAI(t, "", http.StatusOK)
	if err := New(srv.URL+"/v1", "k", "m").Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	if err := New(down.URL+"/v1", "k", "m").Ping(context.Background()); err == nil {
		t.Error("Ping against a closed server should fail")
	}
}

func TestCompact(t *testing.T) {
	got := compact([]string{" a ", "", "  ", "b"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("compact = %q", got)
	}
	if got := compact(nil); len(got) != 0 {
		t.Errorf("compact(nil) = %q", got)
	}
}
