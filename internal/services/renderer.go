package services

import (
	"fmt"
	"strings"
)

// RenderPlaywright serializes test-case specs into a Playwright suite. The
// whole suite lives in one top-level describe block; each case renders its
// steps in order.
func RenderPlaywright(cases []TestCaseSpec) string {
	var b strings.Builder

	b.WriteString("const { test, expect } = require('@playwright/test');\n\n")
	b.WriteString("test.describe('Generated Tests', () => {\n")

	for _, spec := range cases {
		fmt.Fprintf(&b, "  test('%s', async ({ page }) => {\n", jsEscape(spec.Title))
		seq := 0
		for _, step := range spec.Steps {
			renderStep(&b, step, &seq)
		}
		b.WriteString("  });\n\n")
	}

	b.WriteString("});\n")
	return b.String()
}

func renderStep(b *strings.Builder, step Step, seq *int) {
	switch step.Kind {
	case StepNavigate:
		fmt.Fprintf(b, "    await page.goto('%s');\n", jsEscape(step.Target))

	case StepFill:
		fmt.Fprintf(b, "    await page.fill('%s', '%s');\n", jsEscape(step.Target), jsEscape(step.Value))

	case StepClick:
		fmt.Fprintf(b, "    await page.click('%s');\n", jsEscape(step.Target))

	case StepAssertStatus:
		*seq++
		v := fmt.Sprintf("res%d", *seq)
		message := step.Message
		if message == "" {
			message = "Request to " + step.Target + " failed"
		}
		fmt.Fprintf(b, "    let %s;\n", v)
		fmt.Fprintf(b, "    try {\n")
		fmt.Fprintf(b, "      %s = await page.request.get('%s');\n", v, jsEscape(step.Target))
		fmt.Fprintf(b, "    } catch {\n")
		fmt.Fprintf(b, "      throw new Error('%s');\n", jsEscape(message))
		fmt.Fprintf(b, "    }\n")
		fmt.Fprintf(b, "    if (!%s.ok()) {\n", v)
		fmt.Fprintf(b, "      throw new Error('%s');\n", jsEscape(message))
		fmt.Fprintf(b, "    }\n")

	case StepAssertProperty:
		if step.Target == "" {
			// Page-level property; only the URL is modeled today.
			fmt.Fprintf(b, "    await expect(page).toHaveURL(new RegExp('%s'));\n", regexEscape(step.Value))
			return
		}
		*seq++
		v := fmt.Sprintf("body%d", *seq)
		fmt.Fprintf(b, "    const %s = await (await page.request.get('%s')).json();\n", v, jsEscape(step.Target))
		fmt.Fprintf(b, "    expect(%s).toHaveProperty('%s', '%s');\n", v, jsEscape(step.Field), jsEscape(step.Value))

	case StepAssertVisible:
		fmt.Fprintf(b, "    await expect(page.locator('%s')).toBeVisible();\n", jsEscape(step.Target))

	case StepAssertTitle:
		if step.Value == "" {
			fmt.Fprintf(b, "    await expect(page).not.toHaveTitle('');\n")
			return
		}
		fmt.Fprintf(b, "    await expect(page).toHaveTitle(new RegExp('%s'));\n", regexEscape(step.Value))
	}
}

func jsEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	return s
}

// regexEscape escapes characters that are special inside a JS RegExp built
// from a URL or path fragment.
func regexEscape(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`, `.`, `\.`, `?`, `\?`, `+`, `\+`, `*`, `\*`,
		`(`, `\(`, `)`, `\)`, `[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`,
		`^`, `\^`, `$`, `\$`, `|`, `\|`, `/`, `\/`, `'`, `\'`,
	)
	return replacer.Replace(s)
}
