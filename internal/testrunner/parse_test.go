package testrunner

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseGoExtractsFailingFileAndLine(t *testing.T) {
	output := "=== RUN   TestAdd\n--- FAIL: TestAdd (0.00s)\n    math_test.go:17: expected 4, got 5\nFAIL\n"
	failures := Parse(ProjectGo, output)
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %d: %+v", len(failures), failures)
	}
	if failures[0].File != "math_test.go" || failures[0].Line != 17 {
		t.Fatalf("unexpected failure: %+v", failures[0])
	}
	if failures[0].Test != "TestAdd" {
		t.Fatalf("expected test name TestAdd, got %q", failures[0].Test)
	}
}

func TestParsePythonExtractsTracebackLocation(t *testing.T) {
	output := "FAILED tests/test_math.py::test_add\n" +
		"Traceback (most recent call last):\n" +
		`  File "tests/test_math.py", line 9, in test_add` + "\n" +
		"AssertionError\n"
	failures := Parse(ProjectPython, output)
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures (FAILED line + traceback line), got %d: %+v", len(failures), failures)
	}
	foundLine9 := false
	for _, f := range failures {
		if f.Line == 9 && f.File == "tests/test_math.py" {
			foundLine9 = true
		}
	}
	if !foundLine9 {
		t.Fatalf("expected a failure at tests/test_math.py:9, got %+v", failures)
	}
}

func TestParseDedupesSameFileLine(t *testing.T) {
	output := "--- FAIL: TestA\n    a_test.go:5: boom\n--- FAIL: TestB\n    a_test.go:5: boom again\n"
	failures := Parse(ProjectGo, output)
	if len(failures) != 1 {
		t.Fatalf("expected dedupe to (file,line), got %d: %+v", len(failures), failures)
	}
}

func TestDetectProjectTypePrefersNodeOverGo(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", "{}")
	writeFile(t, dir, "go.mod", "module x\n")
	if pt := DetectProjectType(dir); pt != ProjectNode {
		t.Fatalf("expected node to win marker priority, got %s", pt)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}
