package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/qapilot/backend/internal/logger"
)

const defaultInferenceURL = "https://api-inference.huggingface.co/models/facebook/bart-large-mnli"

// RemoteClassifier is tier 1: a hosted zero-shot classification endpoint.
// Any failure (missing token, timeout, non-200, malformed body) escalates to
// the next tier; nothing here is retried.
type RemoteClassifier struct {
	endpoint string
	token    string
	client   *http.Client
}

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
}

type inferenceParameters struct {
	CandidateLabels []string `json:"candidate_labels"`
}

type inferenceResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

func NewRemoteClassifier(endpoint, token string) *RemoteClassifier {
	if endpoint == "" {
		endpoint = os.Getenv("HF_MODEL_URL")
	}
	if endpoint == "" {
		endpoint = defaultInferenceURL
	}
	if token == "" {
		token = os.Getenv("HF_TOKEN")
	}

	return &RemoteClassifier{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (rc *RemoteClassifier) Name() string {
	return MethodAPI
}

// Available reports whether the tier is configured at all. Used by the
// server-status endpoint, not by the chain: an unavailable tier simply fails
// and escalates.
func (rc *RemoteClassifier) Available() bool {
	return rc.token != ""
}

func (rc *RemoteClassifier) Classify(ctx context.Context, text string) ([]Category, error) {
	if rc.token == "" {
		return nil, fmt.Errorf("inference API token missing")
	}

	body, err := json.Marshal(inferenceRequest{
		Inputs:     text,
		Parameters: inferenceParameters{CandidateLabels: candidateLabels},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+rc.token)

	start := time.Now()
	resp, err := rc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	logger.WithClassifier(MethodAPI).Debugf("inference call completed in %v with status %d", time.Since(start), resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("inference API returned status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode inference response: %w", err)
	}

	if len(result.Labels) == 0 || len(result.Labels) != len(result.Scores) {
		return nil, fmt.Errorf("inference API returned malformed result: %d labels, %d scores", len(result.Labels), len(result.Scores))
	}

	categories := make([]Category, len(result.Labels))
	for i, label := range result.Labels {
		categories[i] = Category{Label: label, Score: clampScore(result.Scores[i])}
	}
	return categories, nil
}
