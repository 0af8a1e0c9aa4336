package toolllm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func chatPayload(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{
				"finish_reason": "stop",
				"message": map[string]any{
					"content": content,
				},
			},
		},
	}
}

func TestClientCompleteJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		var body struct {
			ResponseFormat map[string]string `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.ResponseFormat["type"] != "json_object" {
			t.Fatalf("expected json response format, got %v", body.ResponseFormat)
		}
		_ = json.NewEncoder(w).Encode(chatPayload(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if content != `{"ok":true}` {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestClientChatReturnsToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Tools []Tool `json:"tools"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(body.Tools) != 1 || body.Tools[0].Function.Name != "merge_clips" {
			t.Fatalf("expected tools array to round-trip, got %+v", body.Tools)
		}
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "tool_calls",
					"message": map[string]any{
						"content": "",
						"tool_calls": []any{
							map[string]any{
								"type": "function",
								"id":   "call_1",
								"function": map[string]any{
									"name":      "merge_clips",
									"arguments": `{"clip_indexes":[0,1]}`,
								},
							},
						},
					},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	result, err := client.Chat(context.Background(), ChatRequest{
		Messages: []Message{UserMessage("merge the clips")},
		Tools:    []Tool{NewTool("merge_clips", "merge", `{"type":"object"}`)},
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if !result.HasToolCalls() {
		t.Fatal("expected tool calls")
	}
	call := result.ToolCalls[0]
	if call.Name() != "merge_clips" || call.ID != "call_1" {
		t.Fatalf("unexpected tool call %+v", call)
	}
	var args struct {
		ClipIndexes []int `json:"clip_indexes"`
	}
	if err := call.DecodeArguments(&args); err != nil {
		t.Fatalf("decode arguments: %v", err)
	}
	if len(args.ClipIndexes) != 2 {
		t.Fatalf("unexpected arguments %+v", args)
	}
}

func TestClientChatDeltaFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"delta": map[string]any{
						"content": "done",
					},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	result, err := client.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("hi")}})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if result.Content != "done" {
		t.Fatalf("expected delta content, got %q", result.Content)
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		_ = json.NewEncoder(w).Encode(chatPayload(`{"ok":true}`))
	}))
	defer server.Close()

	var slept []time.Duration
	var retries int
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
		WithRetryObserver(func() { retries++ }),
	)
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if content != `{"ok":true}` {
		t.Fatalf("unexpected content %q", content)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s honoring Retry-After, got %v", slept)
	}
	if retries != 1 {
		t.Fatalf("expected retry observer fired once, got %d", retries)
	}
}

func TestClientDoesNotRetryOnHTTP401(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "bad", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(time.Duration) {}),
	)
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected completion to fail")
	}
	if calls != 1 {
		t.Fatalf("expected single call, got %d", calls)
	}
}

func TestClientEmptyResponseHasSnippet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatPayload(""))
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
	)
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected completion to fail")
	}
	if !strings.Contains(err.Error(), "empty response") || !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("expected empty-response error with snippet, got %v", err)
	}
}

func TestMessageMarshalMultimodal(t *testing.T) {
	encoded, err := json.Marshal(UserImageMessage("check this frame", "data:image/png;base64,AAAA"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	text := string(encoded)
	if !strings.Contains(text, `"type":"image_url"`) || !strings.Contains(text, `"type":"text"`) {
		t.Fatalf("expected multimodal content array, got %s", text)
	}

	encoded, err = json.Marshal(UserMessage("plain"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(encoded), `"content":"plain"`) {
		t.Fatalf("expected string content, got %s", encoded)
	}
}

func TestGeneratePromptsValidatesFragments(t *testing.T) {
	script := "Buy the widget today. It changes everything."
	responses := []string{
		`{"clips":[{"prompt":"presenter holds widget","fragment":"Buy the widget today."},{"prompt":"presenter smiles","fragment":"It changes everything."}]}`,
		`{"clips":[{"prompt":"presenter holds widget","fragment":"Please buy the widget now."}]}`,
		`{"clips":[]}`,
	}
	var call int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatPayload(responses[call]))
		call++
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(1),
	)

	pairs, err := client.GeneratePrompts(context.Background(), script, "Ava", 2)
	if err != nil {
		t.Fatalf("GeneratePrompts returned error: %v", err)
	}
	if len(pairs) != 2 || pairs[0].Fragment != "Buy the widget today." {
		t.Fatalf("unexpected pairs %+v", pairs)
	}

	if _, err := client.GeneratePrompts(context.Background(), script, "Ava", 2); err == nil {
		t.Fatal("expected paraphrased fragment to be rejected")
	}

	if _, err := client.GeneratePrompts(context.Background(), script, "Ava", 2); err == nil {
		t.Fatal("expected empty clip list to be rejected")
	}
}

func TestGeneratePromptsEnforcesClipLimit(t *testing.T) {
	script := "One. Two. Three."
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatPayload(
			`{"clips":[{"prompt":"a","fragment":"One."},{"prompt":"b","fragment":"Two."},{"prompt":"c","fragment":"Three."}]}`,
		))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if _, err := client.GeneratePrompts(context.Background(), script, "Ava", 2); err == nil {
		t.Fatal("expected clip count over the limit to be rejected")
	}
}
