package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/qapilot/backend/internal/logger"
)

// LocalClassifier is tier 2: zero-shot classification against a local Ollama
// instance. The model check runs lazily, exactly once per process lifetime;
// concurrent first callers all await the same initialization.
type LocalClassifier struct {
	baseURL string
	model   string
	client  *http.Client

	initGroup singleflight.Group
	mu        sync.RWMutex
	ready     bool
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaModelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type zeroShotResult struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

func NewLocalClassifier(ollamaURL, model string) *LocalClassifier {
	if ollamaURL == "" {
		ollamaURL = os.Getenv("OLLAMA_URL")
	}
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	if model == "" {
		model = os.Getenv("OLLAMA_MODEL")
	}
	if model == "" {
		model = "llama3"
	}

	timeout := 60 * time.Second
	if t := os.Getenv("OLLAMA_TIMEOUT_SECONDS"); t != "" {
		if d, err := time.ParseDuration(t + "s"); err == nil {
			timeout = d
		}
	}

	return &LocalClassifier{
		baseURL: ollamaURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (lc *LocalClassifier) Name() string {
	return MethodLocal
}

// ensureReady verifies once that the Ollama instance is reachable and serves
// the configured model. All concurrent callers share one in-flight check.
func (lc *LocalClassifier) ensureReady(ctx context.Context) error {
	lc.mu.RLock()
	ready := lc.ready
	lc.mu.RUnlock()
	if ready {
		return nil
	}

	_, err, _ := lc.initGroup.Do("init", func() (interface{}, error) {
		lc.mu.RLock()
		done := lc.ready
		lc.mu.RUnlock()
		if done {
			return nil, nil
		}
		if err := lc.checkModel(ctx); err != nil {
			return nil, err
		}
		lc.mu.Lock()
		lc.ready = true
		lc.mu.Unlock()
		logger.WithClassifier(MethodLocal).Infof("local model %q ready", lc.model)
		return nil, nil
	})
	return err
}

func (lc *LocalClassifier) checkModel(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lc.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create model check request: %w", err)
	}

	resp, err := lc.client.Do(req)
	if err != nil {
		return fmt.Errorf("local model service not available: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("local model service returned status %d", resp.StatusCode)
	}

	var models ollamaModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return fmt.Errorf("failed to decode model list: %w", err)
	}

	for _, m := range models.Models {
		if m.Name == lc.model || strings.SplitN(m.Name, ":", 2)[0] == lc.model {
			return nil
		}
	}
	return fmt.Errorf("model %q not available locally", lc.model)
}

func (lc *LocalClassifier) Classify(ctx context.Context, text string) ([]Category, error) {
	clean := sanitizeText(text)
	if len(clean) < minSanitizedLength {
		return nil, fmt.Errorf("text too short after sanitization (%d chars)", len(clean))
	}

	if err := lc.ensureReady(ctx); err != nil {
		return nil, err
	}

	response, err := lc.generate(ctx, zeroShotPrompt(clean))
	if err != nil {
		return nil, err
	}

	return parseZeroShotResponse(response)
}

func (lc *LocalClassifier) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  lc.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": 0.1,
			"top_p":       0.8,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	url := lc.baseURL + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := lc.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("local inference request failed: %w", err)
	}
	defer resp.Body.Close()

	logger.WithClassifier(MethodLocal).Debugf("local inference completed in %v with status %d", time.Since(start), resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("local model returned status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var generated ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&generated); err != nil {
		return "", fmt.Errorf("failed to decode local model response: %w", err)
	}

	return generated.Response, nil
}

func zeroShotPrompt(text string) string {
	return fmt.Sprintf(`You are a requirements analyst. Classify the following requirement text against these candidate labels: %s.

Score every label with a confidence between 0 and 1 and order labels by descending confidence.

Respond with JSON only, no explanations, in exactly this shape:
{"labels": ["label1", "label2"], "scores": [0.8, 0.2]}

Requirement text:
%s`, strings.Join(candidateLabels, ", "), text)
}

// parseZeroShotResponse tolerates markdown code fences around the JSON body,
// which local models add routinely.
func parseZeroShotResponse(response string) ([]Category, error) {
	clean := strings.TrimSpace(response)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	if !strings.HasPrefix(clean, "{") {
		return nil, fmt.Errorf("local model did not return JSON: %q", clean)
	}

	var result zeroShotResult
	if err := json.Unmarshal([]byte(clean), &result); err != nil {
		return nil, fmt.Errorf("failed to parse local model JSON: %w", err)
	}

	if len(result.Labels) == 0 || len(result.Labels) != len(result.Scores) {
		return nil, fmt.Errorf("local model returned malformed result: %d labels, %d scores", len(result.Labels), len(result.Scores))
	}

	categories := make([]Category, len(result.Labels))
	for i, label := range result.Labels {
		categories[i] = Category{Label: label, Score: clampScore(result.Scores[i])}
	}
	return categories, nil
}
