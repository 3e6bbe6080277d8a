// Package testrunner detects a repository's project type, discovers its
// test files, invokes the Sandbox (falling back to direct execution when
// the container runtime is unavailable, per spec.md §4.7), and parses the
// captured output into a deduplicated failure list.
package testrunner

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"codeguardpro/internal/sandbox"
)

// ProjectType is the detected native toolchain of a repository.
type ProjectType string

const (
	ProjectNode    ProjectType = "node"
	ProjectPython  ProjectType = "python"
	ProjectJava    ProjectType = "java"
	ProjectGo      ProjectType = "go"
	ProjectRust    ProjectType = "rust"
	ProjectMake    ProjectType = "make"
	ProjectUnknown ProjectType = "unknown"
)

var skipDirs = map[string]bool{
	"node_modules": true, ".git": true, "dist": true, "build": true,
	"__pycache__": true, ".venv": true, "venv": true, ".tox": true,
}

const maxWalkDepth = 8

// DetectProjectType probes marker files in the priority order spec.md
// §4.8 names.
func DetectProjectType(root string) ProjectType {
	markers := []struct {
		pt    ProjectType
		files []string
	}{
		{ProjectNode, []string{"package.json"}},
		{ProjectPython, []string{"requirements.txt", "setup.py", "pyproject.toml", "Pipfile"}},
		{ProjectJava, []string{"pom.xml", "build.gradle"}},
		{ProjectGo, []string{"go.mod"}},
		{ProjectRust, []string{"Cargo.toml"}},
		{ProjectMake, []string{"Makefile"}},
	}
	for _, m := range markers {
		for _, f := range m.files {
			if _, err := os.Stat(filepath.Join(root, f)); err == nil {
				return m.pt
			}
		}
	}
	return ProjectUnknown
}

// DiscoverTestFiles walks root (skipping skipDirs, bounded to maxWalkDepth)
// collecting paths that look like tests for pt.
func DiscoverTestFiles(root string, pt ProjectType) ([]string, error) {
	var out []string
	rootDepth := strings.Count(filepath.Clean(root), string(filepath.Separator))
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			depth := strings.Count(filepath.Clean(path), string(filepath.Separator)) - rootDepth
			if depth > maxWalkDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if looksLikeTest(path, pt) {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func looksLikeTest(path string, pt ProjectType) bool {
	base := filepath.Base(path)
	switch pt {
	case ProjectNode:
		return strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") || strings.Contains(path, "__tests__")
	case ProjectPython:
		return strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py")
	case ProjectJava:
		return strings.HasSuffix(base, "Test.java") || strings.HasSuffix(base, "Tests.java")
	case ProjectGo:
		return strings.HasSuffix(base, "_test.go")
	case ProjectRust:
		return strings.Contains(path, string(filepath.Separator)+"tests"+string(filepath.Separator)) || strings.HasSuffix(base, ".rs") && strings.Contains(base, "test")
	default:
		return false
	}
}

// entrypoint returns the shell command used to run tests for pt, handed
// to the sandbox or exec'd directly.
func entrypoint(pt ProjectType) []string {
	switch pt {
	case ProjectNode:
		return []string{"sh", "-c", "npm install && npm test"}
	case ProjectPython:
		return []string{"sh", "-c", "pip install -r requirements.txt >/dev/null 2>&1; pytest"}
	case ProjectJava:
		return []string{"sh", "-c", "mvn -q test || gradle test"}
	case ProjectGo:
		return []string{"sh", "-c", "go test ./..."}
	case ProjectRust:
		return []string{"sh", "-c", "cargo test"}
	case ProjectMake:
		return []string{"sh", "-c", "make test"}
	default:
		return nil
	}
}

// Outcome is TestRunner's normalized result for one run.
type Outcome struct {
	ProjectType ProjectType
	Ran         bool
	Stdout      string
	Stderr      string
	ExitCode    int
	TimedOut    bool
	Failures    []Failure
	UsedSandbox bool
}

// Failure is a deduplicated (file, line) diagnostic extracted from test output.
type Failure struct {
	File    string
	Line    int
	Test    string
	Message string
}

// Runner ties a Sandbox (optional) to the detection/discovery/parsing pipeline.
type Runner struct {
	box    *sandbox.Sandbox
	logger *slog.Logger
}

func New(box *sandbox.Sandbox, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{box: box, logger: logger}
}

// Run executes the repository's native test command and returns a parsed
// Outcome. localPath is the checked-out working tree: it is probed to
// detect the project type and, when a Sandbox is available, read into
// memory to build the tar stream copied into the container.
func (r *Runner) Run(ctx context.Context, repoName, localPath string) (Outcome, error) {
	pt := DetectProjectType(localPath)
	tests, err := DiscoverTestFiles(localPath, pt)
	if err != nil {
		return Outcome{ProjectType: pt}, err
	}
	if len(tests) == 0 {
		return Outcome{ProjectType: pt, Ran: false}, nil
	}
	cmd := entrypoint(pt)
	if cmd == nil {
		return Outcome{ProjectType: pt, Ran: false}, nil
	}

	if r.box != nil {
		files, err := readTree(localPath)
		if err != nil {
			return Outcome{}, err
		}
		tarball, err := sandbox.TarSourceTree(files)
		if err != nil {
			return Outcome{}, err
		}
		res, err := r.box.RunTests(ctx, repoName, tarball, cmd)
		if err == nil || res.Stdout != "" || res.Stderr != "" {
			out := Outcome{
				ProjectType: pt, Ran: true, Stdout: res.Stdout, Stderr: res.Stderr,
				ExitCode: res.ExitCode, TimedOut: res.TimedOut, UsedSandbox: true,
			}
			out.Failures = Parse(pt, out.Stdout+"\n"+out.Stderr)
			return out, err
		}
		r.logger.Warn("sandbox unavailable, falling back to direct execution", "repo", repoName, "error", err)
	}

	stdout, stderr, exitCode, timedOut := runDirect(ctx, localPath, cmd)
	out := Outcome{ProjectType: pt, Ran: true, Stdout: stdout, Stderr: stderr, ExitCode: exitCode, TimedOut: timedOut}
	out.Failures = Parse(pt, stdout+"\n"+stderr)
	return out, nil
}

func readTree(root string) (map[string][]byte, error) {
	out := map[string][]byte{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) > 0 && skipDirs[parts[0]] {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		out[rel] = b
		return nil
	})
	return out, err
}

// runDirect is the explicit, logged fallback spec.md §4.7 requires when
// the container runtime is unavailable.
func runDirect(ctx context.Context, dir string, command []string) (stdout, stderr string, exitCode int, timedOut bool) {
	runCtx, cancel := context.WithTimeout(ctx, sandbox.WallClock)
	defer cancel()
	cmd := exec.CommandContext(runCtx, command[0], command[1:]...)
	cmd.Dir = dir
	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	start := time.Now()
	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return outBuf.String(), errBuf.String(), -1, true
	}
	_ = start
	if exitErr, ok := err.(*exec.ExitError); ok {
		return outBuf.String(), errBuf.String(), exitErr.ExitCode(), false
	}
	if err != nil {
		return outBuf.String(), errBuf.String(), -1, false
	}
	return outBuf.String(), errBuf.String(), 0, false
}
