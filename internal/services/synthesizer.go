package services

import (
	"os"
	"strings"
)

type StepKind string

const (
	StepNavigate       StepKind = "navigate"
	StepFill           StepKind = "fill"
	StepClick          StepKind = "click"
	StepAssertStatus   StepKind = "assert-status"
	StepAssertProperty StepKind = "assert-property"
	StepAssertVisible  StepKind = "assert-visible"
	StepAssertTitle    StepKind = "assert-title"
)

// Step is one abstract test action, independent of the target framework.
// Target is a URL or selector depending on Kind. For assert-property, Field
// names the asserted property; an empty Target means a page-level property
// (currently "url"), otherwise the property is read from the JSON body of a
// GET against Target.
type Step struct {
	Kind    StepKind `json:"kind"`
	Target  string   `json:"target,omitempty"`
	Value   string   `json:"value,omitempty"`
	Field   string   `json:"field,omitempty"`
	Message string   `json:"message,omitempty"`
}

// TestCaseSpec is the framework-agnostic description of one test case.
type TestCaseSpec struct {
	Title string `json:"title"`
	Steps []Step `json:"steps"`
}

// TestScript is the rendered, executable form of a synthesized suite.
type TestScript struct {
	Script string `json:"script"`
	Status string `json:"status"` // success | warning
}

const (
	ScriptStatusSuccess = "success"
	ScriptStatusWarning = "warning"
)

// TestSynthesizer converts an AnalysisResult into test-case specs and renders
// them as a Playwright suite. It is a pure function of its input and cannot
// fail: unknown category labels fall through to a generic assertion.
type TestSynthesizer struct {
	appBaseURL string
}

func NewTestSynthesizer(appBaseURL string) *TestSynthesizer {
	if appBaseURL == "" {
		appBaseURL = os.Getenv("APP_BASE_URL")
	}
	if appBaseURL == "" {
		appBaseURL = "http://localhost:3000"
	}
	return &TestSynthesizer{appBaseURL: strings.TrimRight(appBaseURL, "/")}
}

func (ts *TestSynthesizer) Synthesize(analysis *AnalysisResult) TestScript {
	cases := ts.BuildCases(analysis)

	status := ScriptStatusSuccess
	if analysis.Method == MethodFallback {
		status = ScriptStatusWarning
	}

	return TestScript{
		Script: RenderPlaywright(cases),
		Status: status,
	}
}

// BuildCases emits one TestCaseSpec per category, in classifier output order.
// The title is the bare category label: labels are reused downstream as
// artifact names, so no confidence percentage may leak into them.
func (ts *TestSynthesizer) BuildCases(analysis *AnalysisResult) []TestCaseSpec {
	role := firstRole(analysis.Entities)
	hasDatabase := hasSystemEntity(analysis.Entities, "database")

	cases := make([]TestCaseSpec, 0, len(analysis.Categories))
	for _, category := range analysis.Categories {
		spec := TestCaseSpec{Title: category.Label}

		spec.Steps = append(spec.Steps, ts.availabilityStep())
		if role != "" {
			spec.Steps = append(spec.Steps, ts.loginSteps(role)...)
		}
		if hasDatabase {
			spec.Steps = append(spec.Steps, ts.healthCheckSteps()...)
		}
		spec.Steps = append(spec.Steps, ts.categorySteps(category.Label)...)

		cases = append(cases, spec)
	}
	return cases
}

// availabilityStep probes the application root before anything else; the
// rendered form short-circuits the case with a descriptive failure when the
// application is unreachable.
func (ts *TestSynthesizer) availabilityStep() Step {
	return Step{
		Kind:    StepAssertStatus,
		Target:  ts.appBaseURL,
		Message: "Application not running at " + ts.appBaseURL,
	}
}

// loginSteps drives the synthetic role login flow: credentials derived from
// the role name, then a redirect assertion containing the role.
func (ts *TestSynthesizer) loginSteps(role string) []Step {
	return []Step{
		{Kind: StepNavigate, Target: ts.appBaseURL + "/login"},
		{Kind: StepFill, Target: "#email", Value: role + "@test.com"},
		{Kind: StepFill, Target: "#password", Value: role + "123"},
		{Kind: StepClick, Target: "button[type=\"submit\"]"},
		{Kind: StepAssertProperty, Field: "url", Value: role + "-dashboard"},
	}
}

func (ts *TestSynthesizer) healthCheckSteps() []Step {
	healthURL := ts.appBaseURL + "/api/health"
	return []Step{
		{Kind: StepAssertStatus, Target: healthURL, Message: "Health endpoint unreachable at " + healthURL},
		{Kind: StepAssertProperty, Target: healthURL, Field: "status", Value: "healthy"},
	}
}

// categorySteps selects assertions by normalized label, with an explicit
// default branch so synthesis never fails for an unknown category.
func (ts *TestSynthesizer) categorySteps(label string) []Step {
	switch normalizeLabel(label) {
	case "functional requirement", "functional":
		return []Step{
			{Kind: StepNavigate, Target: ts.appBaseURL},
			{Kind: StepAssertVisible, Target: "body"},
		}
	case "non-functional requirement", "non-functional":
		return []Step{
			{Kind: StepAssertStatus, Target: ts.appBaseURL, Message: "Application did not answer within limits"},
		}
	case "use case":
		return []Step{
			{Kind: StepNavigate, Target: ts.appBaseURL},
			{Kind: StepAssertTitle},
		}
	case "constraint":
		return []Step{
			{Kind: StepNavigate, Target: ts.appBaseURL},
			{Kind: StepAssertProperty, Field: "url", Value: ts.appBaseURL},
		}
	default:
		return []Step{
			{Kind: StepNavigate, Target: ts.appBaseURL},
			{Kind: StepAssertVisible, Target: "body"},
		}
	}
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// firstRole selects the first ROLE entity in extraction order; later
// duplicates are ignored. The role name is lowercased for credential
// derivation.
func firstRole(entities []Entity) string {
	for _, entity := range entities {
		if entity.Group == GroupRole {
			return strings.ToLower(entity.Word)
		}
	}
	return ""
}

func hasSystemEntity(entities []Entity, word string) bool {
	for _, entity := range entities {
		if entity.Group == GroupSystem && strings.EqualFold(entity.Word, word) {
			return true
		}
	}
	return false
}
