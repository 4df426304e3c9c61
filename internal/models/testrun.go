package models

import "time"

const (
	TestStatusPassed = "passed"
	TestStatusFailed = "failed"
)

// RunSummary is derived by counting details; it is never trusted from the
// test engine beyond that.
type RunSummary struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// TestDetail is the outcome of one executed test case. Duration is in
// milliseconds.
type TestDetail struct {
	Title    string `json:"title"`
	Status   string `json:"status"`
	Duration int64  `json:"duration"`
	Error    string `json:"error,omitempty"`
}

// TestRunResult is the parsed outcome of one suite execution.
type TestRunResult struct {
	Summary RunSummary   `json:"summary"`
	Details []TestDetail `json:"details"`
}

// TestRun is the durable record of one executed run. Records are append-only:
// created once per completed execution, never mutated, retained indefinitely.
type TestRun struct {
	ID           uint         `json:"id" gorm:"primaryKey"`
	DocumentName string       `json:"documentName"`
	Timestamp    time.Time    `json:"timestamp" gorm:"index"`
	Summary      RunSummary   `json:"summary" gorm:"embedded;embeddedPrefix:summary_"`
	Details      []TestDetail `json:"details" gorm:"type:jsonb;serializer:json"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func (TestRun) TableName() string {
	return "test_runs"
}
