package testrunner

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	nodeStackRe   = regexp.MustCompile(`at .*\(([^():]+):(\d+):\d+\)`)
	nodeBlockRe   = regexp.MustCompile(`^\s*●\s*(.+)$`)
	pyFailedRe    = regexp.MustCompile(`^FAILED\s+(\S+)::(\S+)`)
	pyTracebackRe = regexp.MustCompile(`File "([^"]+)", line (\d+)`)
	javaSummaryRe = regexp.MustCompile(`Tests run:\s*(\d+).*Failures:\s*(\d+)`)
	javaRunningRe = regexp.MustCompile(`Running\s+([\w.]+)`)
	goFailRe      = regexp.MustCompile(`^--- FAIL:\s*(\S+)`)
	goFileLineRe  = regexp.MustCompile(`([\w./-]+\.go):(\d+)`)
	genericRe     = regexp.MustCompile(`(?i)(error|fail).*?([\w./-]+\.\w+):(\d+)`)
)

// Parse dispatches to the language-specific parser spec.md §4.8 names and
// deduplicates the result by (file, line).
func Parse(pt ProjectType, combined string) []Failure {
	var raw []Failure
	switch pt {
	case ProjectNode:
		raw = parseNode(combined)
	case ProjectPython:
		raw = parsePython(combined)
	case ProjectJava:
		raw = parseJava(combined)
	case ProjectGo:
		raw = parseGo(combined)
	default:
		raw = parseGeneric(combined)
	}
	return dedupe(raw)
}

func parseNode(combined string) []Failure {
	var out []Failure
	lines := strings.Split(combined, "\n")
	var currentTest string
	for _, line := range lines {
		if m := nodeBlockRe.FindStringSubmatch(line); m != nil {
			currentTest = strings.TrimSpace(m[1])
			continue
		}
		if m := nodeStackRe.FindStringSubmatch(line); m != nil {
			lineNum, _ := strconv.Atoi(m[2])
			out = append(out, Failure{File: m[1], Line: lineNum, Test: currentTest, Message: strings.TrimSpace(line)})
		}
	}
	return out
}

func parsePython(combined string) []Failure {
	var out []Failure
	var currentTest string
	lines := strings.Split(combined, "\n")
	for _, line := range lines {
		if m := pyFailedRe.FindStringSubmatch(line); m != nil {
			currentTest = m[1] + "::" + m[2]
			out = append(out, Failure{File: m[1], Test: currentTest, Message: strings.TrimSpace(line)})
			continue
		}
		if m := pyTracebackRe.FindStringSubmatch(line); m != nil {
			lineNum, _ := strconv.Atoi(m[2])
			out = append(out, Failure{File: m[1], Line: lineNum, Test: currentTest, Message: strings.TrimSpace(line)})
		}
	}
	return out
}

func parseJava(combined string) []Failure {
	var out []Failure
	var currentClass string
	lines := strings.Split(combined, "\n")
	for _, line := range lines {
		if m := javaRunningRe.FindStringSubmatch(line); m != nil {
			currentClass = m[1]
			continue
		}
		if m := javaSummaryRe.FindStringSubmatch(line); m != nil {
			failures, _ := strconv.Atoi(m[2])
			if failures > 0 {
				file := strings.ReplaceAll(currentClass, ".", "/") + ".java"
				out = append(out, Failure{File: file, Test: currentClass, Message: strings.TrimSpace(line)})
			}
		}
	}
	return out
}

func parseGo(combined string) []Failure {
	var out []Failure
	lines := strings.Split(combined, "\n")
	for i := 0; i < len(lines); i++ {
		m := goFailRe.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		testName := m[1]
		for j := i + 1; j < len(lines) && j < i+6; j++ {
			if fl := goFileLineRe.FindStringSubmatch(lines[j]); fl != nil {
				lineNum, _ := strconv.Atoi(fl[2])
				out = append(out, Failure{File: fl[1], Line: lineNum, Test: testName, Message: strings.TrimSpace(lines[j])})
				break
			}
		}
	}
	return out
}

func parseGeneric(combined string) []Failure {
	var out []Failure
	for _, line := range strings.Split(combined, "\n") {
		m := genericRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNum, _ := strconv.Atoi(m[3])
		out = append(out, Failure{File: m[2], Line: lineNum, Message: strings.TrimSpace(line)})
	}
	return out
}

func dedupe(in []Failure) []Failure {
	seen := make(map[string]bool, len(in))
	out := make([]Failure, 0, len(in))
	for _, f := range in {
		key := f.File + ":" + strconv.Itoa(f.Line)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}
