// Package sandbox runs a repository's test command inside an isolated,
// resource-capped Docker container. Grounded on the teacher's container
// runtime helper (agents/shared/docker/client.go), generalized from a
// general-purpose exec/copy/logs client down to the single operation
// spec.md §4.7 needs: RunTests.
package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"codeguardpro/internal/forgeerr"
	"codeguardpro/internal/pathsafe"
)

const (
	MaxCPU       = 1.0
	MaxMemoryMB  = 512
	MaxPIDs      = 256
	WallClock    = 180 * time.Second
	mountPoint   = "/workspace"
	defaultImage = "codeguardpro/sandbox-runner:latest"
)

// Result is the outcome of one RunTests invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Sandbox owns a Docker API client. A nil Sandbox (or one constructed over
// an unreachable daemon) signals callers to fall back to direct execution,
// per spec.md §4.7's explicit-fallback requirement.
type Sandbox struct {
	api   *client.Client
	image string
}

// New connects to the local Docker daemon. Returns forgeerr.SandboxFailure
// if the daemon cannot be reached — TestRunner treats that as "unavailable"
// and falls back to direct execution, logging the decision.
func New(image string) (*Sandbox, error) {
	if image == "" {
		image = defaultImage
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, forgeerr.Wrap(forgeerr.SandboxFailure, "create docker client", err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		_ = cli.Close()
		return nil, forgeerr.Wrap(forgeerr.SandboxFailure, "docker daemon unreachable", err)
	}
	return &Sandbox{api: cli, image: image}, nil
}

func (s *Sandbox) Close() error {
	if s == nil || s.api == nil {
		return nil
	}
	return s.api.Close()
}

// RunTests executes entrypoint (the project-type-specific test command)
// against the given source tree inside a single-use, capped container.
// tarball is the repo's working tree packed as a tar stream. The container
// runs on the bridge network for the whole run: the install phase and the
// tests alike have network access.
func (s *Sandbox) RunTests(ctx context.Context, name string, tarball io.Reader, entrypoint []string) (Result, error) {
	if s == nil || s.api == nil {
		return Result{}, forgeerr.New(forgeerr.SandboxFailure, "sandbox not initialized")
	}
	if len(entrypoint) == 0 {
		return Result{}, errors.New("sandbox: entrypoint required")
	}

	cpuQuota := int64(MaxCPU * 100000)
	hostCfg := &container.HostConfig{
		AutoRemove:     false,
		ReadonlyRootfs: false,
		Resources: container.Resources{
			NanoCPUs:   int64(MaxCPU * 1e9),
			Memory:     MaxMemoryMB * 1024 * 1024,
			MemorySwap: MaxMemoryMB * 1024 * 1024,
			PidsLimit:  int64Ptr(MaxPIDs),
			CPUQuota:   cpuQuota,
			CPUPeriod:  100000,
		},
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
		Tmpfs: map[string]string{
			"/tmp":  "rw,noexec,nosuid,size=256m",
			"/work": "rw,size=512m",
		},
		NetworkMode: container.NetworkMode("bridge"),
	}

	containerCfg := &container.Config{
		Image:      s.image,
		Cmd:        entrypoint,
		WorkingDir: "/work",
		Tty:        false,
	}

	containerName := fmt.Sprintf("codeguard-sandbox-%s-%d", sanitizeName(name), time.Now().UnixNano())
	created, err := s.api.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, containerName)
	if err != nil {
		return Result{}, forgeerr.Wrap(forgeerr.SandboxFailure, "create container", err)
	}
	containerID := created.ID
	defer func() {
		_ = s.api.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	}()

	if err := s.copySourceTree(ctx, containerID, tarball); err != nil {
		return Result{}, forgeerr.Wrap(forgeerr.SandboxFailure, "copy source tree into container", err)
	}

	if err := s.api.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return Result{}, forgeerr.Wrap(forgeerr.SandboxFailure, "start container", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, WallClock)
	defer cancel()

	statusCh, errCh := s.api.ContainerWait(runCtx, containerID, container.WaitConditionNotRunning)
	var exitCode int
	var timedOut bool
	select {
	case <-runCtx.Done():
		timedOut = true
		_ = s.api.ContainerKill(context.Background(), containerID, "SIGKILL")
	case err := <-errCh:
		if err != nil {
			return Result{}, forgeerr.Wrap(forgeerr.SandboxFailure, "wait for container", err)
		}
	case st := <-statusCh:
		exitCode = int(st.StatusCode)
	}

	stdout, stderr := s.collectLogs(context.Background(), containerID)
	if timedOut {
		return Result{Stdout: stdout, Stderr: stderr, TimedOut: true, ExitCode: -1},
			forgeerr.New(forgeerr.SandboxTimeout, fmt.Sprintf("test run exceeded %s", WallClock))
	}
	return Result{Stdout: stdout, Stderr: stderr, ExitCode: exitCode}, nil
}

func (s *Sandbox) copySourceTree(ctx context.Context, containerID string, tarball io.Reader) error {
	return s.api.CopyToContainer(ctx, containerID, mountPoint, tarball, types.CopyToContainerOptions{
		AllowOverwriteDirWithFile: true,
	})
}

func (s *Sandbox) collectLogs(ctx context.Context, containerID string) (stdout, stderr string) {
	reader, err := s.api.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", ""
	}
	defer reader.Close()
	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, reader); err != nil {
		var all bytes.Buffer
		_, _ = io.Copy(&all, reader)
		return all.String(), ""
	}
	return outBuf.String(), errBuf.String()
}

// TarSourceTree packs files (path -> content) into a tar stream suitable
// for copySourceTree, given an already-read-into-memory working tree.
func TarSourceTree(files map[string][]byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for path, content := range files {
		hdr := &tar.Header{Name: pathsafe.ToPOSIX(path), Mode: 0o644, Size: int64(len(content)), ModTime: time.Now()}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(content); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func sanitizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			out = append(out, r)
			continue
		}
		out = append(out, '-')
	}
	if len(out) == 0 {
		return "repo"
	}
	return string(out)
}

func int64Ptr(v int64) *int64 { return &v }
