// Package fixagent generates a replacement for one file given a single
// classified Issue, per spec.md §4.10. The primary path is a structured
// LLM prompt/parse round-trip against Claude (github.com/anthropics/
// anthropic-sdk-go); a deterministic per-BugKind rule-based path is the
// fallback when no LLM key is configured, or when the LLM response fails
// the sanity check.
package fixagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"codeguardpro/internal/domain"
)

// CommitMarkerPrefix is prepended to every commit message FixAgent
// produces; spec.md §4.10 requires it and says a missing prefix must be
// auto-added.
const CommitMarkerPrefix = "[AI-AGENT]"

const contextRadius = 15

// Result is FixAgent.GenerateFix's return contract.
type Result struct {
	Success       bool
	FixedCode     string
	CommitMessage string
	Explanation   string
}

// Agent generates fixes, preferring the LLM path when configured.
type Agent struct {
	client *anthropic.Client
	model  string
}

// New constructs an Agent. apiKey == "" disables the LLM path entirely —
// GenerateFix then always uses the rule-based fallback.
func New(apiKey, model string) *Agent {
	if apiKey == "" {
		return &Agent{}
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	if model == "" {
		model = "claude-3-5-sonnet-latest"
	}
	return &Agent{client: &client, model: model}
}

// GenerateFix produces a full-file replacement addressing issue.
func (a *Agent) GenerateFix(ctx context.Context, issue domain.Issue, fullFileContent string) (Result, error) {
	if a.client != nil {
		result, err := a.generateViaLLM(ctx, issue, fullFileContent)
		if err == nil && result.Success && sane(fullFileContent, result.FixedCode) {
			result.CommitMessage = ensureMarker(result.CommitMessage)
			return result, nil
		}
	}
	return a.generateViaRules(issue, fullFileContent), nil
}

func (a *Agent) generateViaLLM(ctx context.Context, issue domain.Issue, fullFileContent string) (Result, error) {
	prompt := buildPrompt(issue, fullFileContent)
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   8192,
		Temperature: anthropic.Float(0.1),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("fixagent: llm call: %w", err)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return parseResponse(text.String()), nil
}

func buildPrompt(issue domain.Issue, fullFileContent string) string {
	lines := strings.Split(fullFileContent, "\n")
	start := issue.Line - 1 - contextRadius
	if start < 0 {
		start = 0
	}
	end := issue.Line - 1 + contextRadius
	if end > len(lines) {
		end = len(lines)
	}
	snippet := strings.Join(lines[start:end], "\n")

	var b strings.Builder
	b.WriteString("You are fixing a single detected code issue. Respond with exactly three delimited sections and nothing else.\n\n")
	fmt.Fprintf(&b, "File: %s\nLine: %d\nBug type: %s\nDescription: %s\n\n", issue.File, issue.Line, issue.BugType, issue.Description)
	b.WriteString("Context around the line:\n```\n")
	b.WriteString(snippet)
	b.WriteString("\n```\n\n")
	b.WriteString("Full current file:\n```\n")
	b.WriteString(fullFileContent)
	b.WriteString("\n```\n\n")
	b.WriteString("Respond in exactly this format:\n")
	b.WriteString("===FIXED_CODE_START===\n<the full corrected file content>\n===FIXED_CODE_END===\n")
	b.WriteString("===COMMIT_MESSAGE===\n<one line commit message>\n")
	b.WriteString("===EXPLANATION===\n<one or two sentence explanation>\n")
	return b.String()
}

// parseResponse strictly parses the delimited sections. On failure, it
// falls back to extracting a single fenced code block as the replacement,
// per spec.md §4.10.
func parseResponse(text string) Result {
	code, ok := between(text, "===FIXED_CODE_START===", "===FIXED_CODE_END===")
	if !ok {
		code, ok = firstFencedBlock(text)
		if !ok {
			return Result{Success: false}
		}
	}
	commitMsg, _ := between(text, "===COMMIT_MESSAGE===", "===EXPLANATION===")
	explanation := afterLast(text, "===EXPLANATION===")
	return Result{
		Success:       true,
		FixedCode:     strings.Trim(code, "\n"),
		CommitMessage: strings.TrimSpace(commitMsg),
		Explanation:   strings.TrimSpace(explanation),
	}
}

func between(s, start, end string) (string, bool) {
	si := strings.Index(s, start)
	if si < 0 {
		return "", false
	}
	si += len(start)
	ei := strings.Index(s[si:], end)
	if ei < 0 {
		return "", false
	}
	return s[si : si+ei], true
}

func afterLast(s, marker string) string {
	i := strings.LastIndex(s, marker)
	if i < 0 {
		return ""
	}
	return s[i+len(marker):]
}

func firstFencedBlock(s string) (string, bool) {
	si := strings.Index(s, "```")
	if si < 0 {
		return "", false
	}
	rest := s[si+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && nl < 20 {
		rest = rest[nl+1:]
	}
	ei := strings.Index(rest, "```")
	if ei < 0 {
		return "", false
	}
	return rest[:ei], true
}

// sane enforces the 30%-300% length ratio sanity check.
func sane(original, fixed string) bool {
	if len(fixed) == 0 {
		return false
	}
	ratio := float64(len(fixed)) / float64(maxInt(len(original), 1))
	return ratio >= 0.3 && ratio <= 3.0
}

func ensureMarker(msg string) string {
	msg = strings.TrimSpace(msg)
	if strings.HasPrefix(msg, CommitMarkerPrefix) {
		return msg
	}
	if msg == "" {
		return CommitMarkerPrefix + " automated fix"
	}
	return CommitMarkerPrefix + " " + msg
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
