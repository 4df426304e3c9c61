package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/qapilot/backend/internal/logger"
	"github.com/qapilot/backend/internal/models"
)

const (
	defaultRunTimeout = 120 * time.Second
	maxEngineOutput   = 5 * 1024 * 1024 // 5MB cap regardless of engine verbosity
	perTestTimeoutMS  = 30000
)

// runSeq disambiguates runs that land on the same nanosecond.
var runSeq uint64

// TestRunner executes a rendered script with the Playwright CLI in an
// isolated subprocess. Each run gets its own ephemeral spec and config file;
// both are removed on every exit path.
type TestRunner struct {
	dir     string
	timeout time.Duration
}

func NewTestRunner(dir string) *TestRunner {
	if dir == "" {
		dir = "generated-tests"
	}

	timeout := defaultRunTimeout
	if t := os.Getenv("TEST_TIMEOUT_SECONDS"); t != "" {
		if d, err := time.ParseDuration(t + "s"); err == nil {
			timeout = d
		}
	}

	return &TestRunner{dir: dir, timeout: timeout}
}

// Run blocks until the engine exits or the bounded timeout fires. A non-zero
// exit with parseable reporter output is a completed run (the failures are in
// the details); no parseable output at all is an ExecutionError.
func (tr *TestRunner) Run(ctx context.Context, script, documentName string) (*models.TestRunResult, error) {
	if strings.TrimSpace(script) == "" {
		return nil, &ExecutionError{Msg: "test execution failed", Detail: "empty test script"}
	}

	if err := os.MkdirAll(tr.dir, 0o755); err != nil {
		return nil, &ExecutionError{Msg: "test execution failed", Detail: fmt.Sprintf("cannot create test directory: %v", err)}
	}

	token := fmt.Sprintf("%d_%d", time.Now().UnixNano(), atomic.AddUint64(&runSeq, 1))
	testFile := filepath.Join(tr.dir, fmt.Sprintf("test_%s.spec.js", token))
	configFile := filepath.Join(tr.dir, fmt.Sprintf("playwright.config_%s.js", token))

	if err := os.WriteFile(testFile, []byte(script), 0o644); err != nil {
		return nil, &ExecutionError{Msg: "test execution failed", Detail: fmt.Sprintf("cannot write test file: %v", err)}
	}
	defer os.Remove(testFile)

	if err := os.WriteFile(configFile, []byte(tr.configFor(testFile)), 0o644); err != nil {
		return nil, &ExecutionError{Msg: "test execution failed", Detail: fmt.Sprintf("cannot write config file: %v", err)}
	}
	defer os.Remove(configFile)

	runCtx, cancel := context.WithTimeout(ctx, tr.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "npx", "playwright", "test", "--config="+configFile, "--reporter=json")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, max: maxEngineOutput}
	cmd.Stderr = &limitedWriter{w: &stderr, max: maxEngineOutput}

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	log := logger.WithRun(documentName)
	log.Infof("test engine exited after %v (err: %v)", elapsed, runErr)

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, &ExecutionError{
			Msg:    "test execution timed out",
			Detail: fmt.Sprintf("engine did not finish within %s", tr.timeout),
		}
	}

	details, parseErr := parsePlaywrightReport(stdout.Bytes())
	if parseErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = parseErr.Error()
		}
		if runErr != nil {
			detail = fmt.Sprintf("%v: %s", runErr, detail)
		}
		return nil, &ExecutionError{Msg: "test execution failed", Detail: detail}
	}

	result := &models.TestRunResult{Details: details}
	for _, d := range details {
		result.Summary.Total++
		if d.Status == models.TestStatusPassed {
			result.Summary.Passed++
		} else {
			result.Summary.Failed++
		}
	}
	return result, nil
}

func (tr *TestRunner) configFor(testFile string) string {
	return fmt.Sprintf(`module.exports = {
  testDir: '.',
  testMatch: '%s',
  timeout: %d,
  workers: 1,
};
`, filepath.Base(testFile), perTestTimeoutMS)
}

// SweepStale removes generated spec/config files older than maxAge. Run
// crashes can orphan ephemeral files; the server sweeps them on boot.
func (tr *TestRunner) SweepStale(maxAge time.Duration) {
	entries, err := os.ReadDir(tr.dir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "test_") && !strings.HasPrefix(name, "playwright.config_") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(tr.dir, name)); err == nil {
			logger.Info("removed stale generated test artifact", map[string]interface{}{"file": name})
		}
	}
}

// Playwright --reporter=json emits a tree of suites; specs can sit at any
// depth because each describe block nests one level.
type pwReport struct {
	Suites []pwSuite `json:"suites"`
}

type pwSuite struct {
	Title  string    `json:"title"`
	Specs  []pwSpec  `json:"specs"`
	Suites []pwSuite `json:"suites"`
}

type pwSpec struct {
	Title string   `json:"title"`
	Tests []pwTest `json:"tests"`
}

type pwTest struct {
	Results []pwResult `json:"results"`
}

type pwResult struct {
	Status   string   `json:"status"`
	Duration int64    `json:"duration"`
	Error    *pwError `json:"error"`
}

type pwError struct {
	Message string `json:"message"`
}

func parsePlaywrightReport(output []byte) ([]models.TestDetail, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("engine produced no output")
	}

	var report pwReport
	if err := json.Unmarshal(trimmed, &report); err != nil {
		return nil, fmt.Errorf("engine output is not a parseable report: %w", err)
	}

	var details []models.TestDetail
	var walk func(suites []pwSuite)
	walk = func(suites []pwSuite) {
		for _, suite := range suites {
			for _, spec := range suite.Specs {
				details = append(details, specDetail(spec))
			}
			walk(suite.Suites)
		}
	}
	walk(report.Suites)

	if len(details) == 0 {
		return nil, fmt.Errorf("report contains no test results")
	}
	return details, nil
}

func specDetail(spec pwSpec) models.TestDetail {
	detail := models.TestDetail{
		Title:  spec.Title,
		Status: models.TestStatusFailed,
	}

	for _, test := range spec.Tests {
		for _, result := range test.Results {
			detail.Duration += result.Duration
			if result.Status == "passed" {
				detail.Status = models.TestStatusPassed
			} else if result.Error != nil && detail.Error == "" {
				detail.Error = result.Error.Message
			}
		}
	}
	return detail
}

// limitedWriter caps captured subprocess output; everything past max is
// discarded, not buffered.
type limitedWriter struct {
	w         *bytes.Buffer
	max       int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	remaining := lw.max - int64(lw.w.Len())
	if remaining <= 0 {
		lw.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		lw.truncated = true
		lw.w.Write(p[:remaining])
		return len(p), nil
	}
	return lw.w.Write(p)
}
