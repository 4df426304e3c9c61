package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type stubClassifier struct {
	name       string
	categories []Category
	err        error
	calls      int
}

func (s *stubClassifier) Name() string { return s.name }

func (s *stubClassifier) Classify(ctx context.Context, text string) ([]Category, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.categories, nil
}

func TestAnalyzeUsesFirstSucceedingTier(t *testing.T) {
	first := &stubClassifier{name: MethodAPI, categories: []Category{{Label: "use case", Score: 0.7}}}
	second := &stubClassifier{name: MethodLocal, categories: []Category{{Label: "constraint", Score: 0.5}}}

	ra := NewRequirementAnalyzer(first, second, NewHeuristicClassifier())
	result := ra.Analyze(context.Background(), "The admin configures the database")

	if result.Method != MethodAPI {
		t.Errorf("Expected method '%s', got '%s'", MethodAPI, result.Method)
	}
	if second.calls != 0 {
		t.Errorf("Expected later tier not to run, got %d calls", second.calls)
	}
	if len(result.Entities) == 0 {
		t.Error("Expected entities attached for a successful inference tier")
	}
}

func TestAnalyzeEscalatesSequentially(t *testing.T) {
	first := &stubClassifier{name: MethodAPI, err: errors.New("timeout")}
	second := &stubClassifier{name: MethodLocal, categories: []Category{{Label: "functional requirement", Score: 0.9}}}

	ra := NewRequirementAnalyzer(first, second, NewHeuristicClassifier())
	result := ra.Analyze(context.Background(), "The user logs into the server")

	if first.calls != 1 {
		t.Errorf("Expected first tier to be tried once, got %d", first.calls)
	}
	if result.Method != MethodLocal {
		t.Errorf("Expected method '%s', got '%s'", MethodLocal, result.Method)
	}
}

func TestAnalyzeFallbackAfterAllTiersFail(t *testing.T) {
	first := &stubClassifier{name: MethodAPI, err: errors.New("api unreachable")}
	second := &stubClassifier{name: MethodLocal, err: errors.New("model unavailable")}

	ra := NewRequirementAnalyzer(first, second, NewHeuristicClassifier())
	result := ra.Analyze(context.Background(), "The admin uses the database")

	if result.Method != MethodFallback {
		t.Errorf("Expected method 'fallback', got '%s'", result.Method)
	}
	if len(result.Categories) != 1 {
		t.Fatalf("Expected a single fallback category, got %d", len(result.Categories))
	}
	if result.Categories[0].Label != "manual-review-needed" {
		t.Errorf("Expected label 'manual-review-needed', got '%s'", result.Categories[0].Label)
	}
	if result.Categories[0].Score != 1.0 {
		t.Errorf("Expected score 1.0, got %f", result.Categories[0].Score)
	}
	if len(result.Entities) != 0 {
		t.Errorf("Expected empty entities on fallback, got %v", result.Entities)
	}
}

func TestAnalyzeIsTotal(t *testing.T) {
	ra := NewRequirementAnalyzer(NewHeuristicClassifier())

	for _, text := range []string{"", "!!!", "\x00\x01\x02", strings.Repeat("x", 100000)} {
		result := ra.Analyze(context.Background(), text)
		if result == nil {
			t.Fatalf("Analyze returned nil for input %q", text)
		}
		if len(result.Categories) == 0 {
			t.Errorf("Expected at least one category for input %q", text)
		}
		for _, category := range result.Categories {
			if category.Score < 0 || category.Score > 1 {
				t.Errorf("Score out of range for %q: %f", category.Label, category.Score)
			}
		}
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"plain text", "plain text"},
		{"tabs\tand\nnewlines", "tabs and newlines"},
		{"  collapse   many    spaces  ", "collapse many spaces"},
		{"non\x00printable\x7fchars", "non printable chars"},
		{"", ""},
	}

	for _, test := range tests {
		result := sanitizeText(test.input)
		if result != test.expected {
			t.Errorf("For input %q, expected %q, got %q", test.input, test.expected, result)
		}
	}
}

func TestSanitizeTextTruncates(t *testing.T) {
	long := strings.Repeat("a", 5000)
	result := sanitizeText(long)
	if len(result) != maxSanitizedLength {
		t.Errorf("Expected truncation to %d chars, got %d", maxSanitizedLength, len(result))
	}
}

func TestRemoteClassifier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(inferenceResponse{
			Labels: []string{"functional requirement", "use case"},
			Scores: []float64{0.82, 0.18},
		})
	}))
	defer server.Close()

	rc := NewRemoteClassifier(server.URL, "test-token")
	categories, err := rc.Classify(context.Background(), "The user can reset a password")
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}

	if len(categories) != 2 {
		t.Fatalf("Expected 2 categories, got %d", len(categories))
	}
	if categories[0].Label != "functional requirement" || categories[0].Score != 0.82 {
		t.Errorf("Unexpected first category: %+v", categories[0])
	}
}

func TestRemoteClassifierFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "not json")
			},
		},
		{
			name: "label/score mismatch",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(inferenceResponse{Labels: []string{"a", "b"}, Scores: []float64{0.5}})
			},
		},
	}

	for _, test := range tests {
		server := httptest.NewServer(test.handler)
		rc := NewRemoteClassifier(server.URL, "test-token")
		if _, err := rc.Classify(context.Background(), "some requirement text"); err == nil {
			t.Errorf("%s: expected error, got nil", test.name)
		}
		server.Close()
	}
}

func TestRemoteClassifierMissingToken(t *testing.T) {
	rc := &RemoteClassifier{endpoint: "http://localhost:1", token: "", client: http.DefaultClient}
	if _, err := rc.Classify(context.Background(), "text"); err == nil {
		t.Error("Expected error when API token is missing")
	}
}

func TestLocalClassifierRejectsShortInput(t *testing.T) {
	lc := NewLocalClassifier("http://localhost:1", "llama3")
	if _, err := lc.Classify(context.Background(), "ab"); err == nil {
		t.Error("Expected error for input below minimum sanitized length")
	}
}

func TestLocalClassifierSingleFlightInit(t *testing.T) {
	var mu sync.Mutex
	tagCalls := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			mu.Lock()
			tagCalls++
			mu.Unlock()
			fmt.Fprint(w, `{"models":[{"name":"llama3:latest"}]}`)
		case "/api/generate":
			resp := ollamaGenerateResponse{
				Response: `{"labels":["use case"],"scores":[0.9]}`,
				Done:     true,
			}
			json.NewEncoder(w).Encode(resp)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	lc := NewLocalClassifier(server.URL, "llama3")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lc.Classify(context.Background(), "A requirement long enough to classify"); err != nil {
				t.Errorf("Classify failed: %v", err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if tagCalls != 1 {
		t.Errorf("Expected a single model availability check, got %d", tagCalls)
	}
}

func TestParseZeroShotResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		labels  int
		wantErr bool
	}{
		{
			name:   "plain json",
			input:  `{"labels":["use case","constraint"],"scores":[0.6,0.4]}`,
			labels: 2,
		},
		{
			name:   "fenced json",
			input:  "```json\n{\"labels\":[\"use case\"],\"scores\":[1.0]}\n```",
			labels: 1,
		},
		{
			name:    "not json",
			input:   "I think this is a use case.",
			wantErr: true,
		},
		{
			name:    "mismatched lengths",
			input:   `{"labels":["a"],"scores":[0.5,0.5]}`,
			wantErr: true,
		},
		{
			name:    "empty labels",
			input:   `{"labels":[],"scores":[]}`,
			wantErr: true,
		},
	}

	for _, test := range tests {
		categories, err := parseZeroShotResponse(test.input)
		if test.wantErr {
			if err == nil {
				t.Errorf("%s: expected error, got %v", test.name, categories)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", test.name, err)
			continue
		}
		if len(categories) != test.labels {
			t.Errorf("%s: expected %d categories, got %d", test.name, test.labels, len(categories))
		}
	}
}

func TestParseZeroShotResponseClampsScores(t *testing.T) {
	categories, err := parseZeroShotResponse(`{"labels":["a","b"],"scores":[1.4,-0.2]}`)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if categories[0].Score != 1 {
		t.Errorf("Expected score clamped to 1, got %f", categories[0].Score)
	}
	if categories[1].Score != 0 {
		t.Errorf("Expected score clamped to 0, got %f", categories[1].Score)
	}
}
