// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"stackctl/internal/issue"
)

func TestRun_DetachedReturnsContainerID(t *testing.T) {
	t.Parallel()

	engine, recorder := newMockDocker(t)
	recorder.Stdout = "f00dcafe\n"

	result, err := engine.Run(t.Context(), RunOptions{Image: "postgres:16", Name: "demo-db", Detach: true})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.ContainerID != "f00dcafe" {
		t.Errorf("ContainerID = %q, want f00dcafe", result.ContainerID)
	}
	recorder.AssertArgsContain(t, "run -d --name demo-db")
}

func TestRun_SecretEnvStaysOffCommandLine(t *testing.T) {
	t.Parallel()

	engine, recorder := newMockDocker(t)
	recorder.EchoEnv = "API_TOKEN"

	result, err := engine.Run(t.Context(), RunOptions{
		Image:     "demo-app:abc",
		Detach:    true,
		SecretEnv: map[string]string{"API_TOKEN": "s3cret"},
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	recorder.AssertArgsContain(t, "-e API_TOKEN")
	recorder.AssertArgsNotContain(t, "s3cret")
	if result.ContainerID != "s3cret" {
		t.Errorf("engine process should see the secret in its environment, got %q", result.ContainerID)
	}
}

func TestRun_DetachedPortAllocated(t *testing.T) {
	t.Parallel()

	engine, recorder := newMockDocker(t)
	recorder.ExitCode = 125
	recorder.Stderr = "Bind for 0.0.0.0:5432 failed: port is already allocated"

	_, err := engine.Run(t.Context(), RunOptions{
		Image:  "postgres:16",
		Name:   "demo-db",
		Detach: true,
		Ports:  []PortMapping{{HostPort: 5432, ContainerPort: 5432}},
	})
	if err == nil {
		t.Fatal("Run() should fail")
	}
	if id, ok := issue.IssueOf(err); !ok || id != issue.PortAllocatedId {
		t.Errorf("IssueOf() = %d, %v; want PortAllocatedId", id, ok)
	}
	// Container start is never retried.
	recorder.AssertInvocationCount(t, 1)
}

func TestRun_AttachedCapturesExitCode(t *testing.T) {
	t.Parallel()

	engine, recorder := newMockDocker(t)
	recorder.ExitCode = 3
	recorder.Stdout = "hello"

	var out bytes.Buffer
	result, err := engine.Run(t.Context(), RunOptions{Image: "demo-app:abc", Stdout: &out})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.ExitCode != 3 || result.Error != nil {
		t.Errorf("result = %+v, want exit 3 without infrastructure error", result)
	}
	if out.String() != "hello" {
		t.Errorf("stdout = %q", out.String())
	}
}

func TestRun_ValidatesOptions(t *testing.T) {
	t.Parallel()

	engine, recorder := newMockDocker(t)
	_, err := engine.Run(t.Context(), RunOptions{Image: "x", Name: "-bad"})
	if !errors.Is(err, ErrInvalidContainerName) {
		t.Errorf("Run() error = %v, want ErrInvalidContainerName", err)
	}
	recorder.AssertInvocationCount(t, 0)
}

func TestBuild_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	engine, recorder := newMockDocker(t)
	recorder.ExitCode = 125

	err := engine.Build(t.Context(), BuildOptions{ContextDir: "/src", Tag: "demo-app:abc"})
	if err == nil {
		t.Fatal("Build() should fail")
	}
	recorder.AssertInvocationCount(t, 3)

	var ae *issue.ActionableError
	if !errors.As(err, &ae) || ae.Issue != issue.ImageBuildFailedId {
		t.Errorf("Build() error = %v, want actionable ImageBuildFailed", err)
	}
}

func TestBuild_PermanentFailureNotRetried(t *testing.T) {
	t.Parallel()

	engine, recorder := newMockDocker(t)
	recorder.ExitCode = 1
	recorder.Stderr = "failed to solve: requirements.txt: not found"

	var stderr bytes.Buffer
	err := engine.Build(t.Context(), BuildOptions{ContextDir: "/src", Tag: "demo-app:abc", Stderr: &stderr})
	if err == nil {
		t.Fatal("Build() should fail")
	}
	recorder.AssertInvocationCount(t, 1)
	if stderr.String() != recorder.Stderr {
		t.Errorf("build stderr should be forwarded, got %q", stderr.String())
	}
}

func TestPull(t *testing.T) {
	t.Parallel()

	engine, recorder := newMockDocker(t)
	if err := engine.Pull(t.Context(), "postgres:16"); err != nil {
		t.Fatalf("Pull() error: %v", err)
	}
	recorder.AssertArgsContain(t, "pull postgres:16")
}

func TestInspect(t *testing.T) {
	t.Parallel()

	engine, recorder := newMockDocker(t)
	recorder.Stdout = `{"Status":"running","Running":true,"ExitCode":0,"StartedAt":"2026-01-02T03:04:05.123456789Z","Health":{"Status":"healthy"}}`

	state, err := engine.Inspect(t.Context(), "demo-db")
	if err != nil {
		t.Fatalf("Inspect() error: %v", err)
	}
	if !state.Running || state.Status != "running" || state.Health != "healthy" {
		t.Errorf("state = %+v", state)
	}
	if state.StartedAt.Year() != 2026 {
		t.Errorf("StartedAt = %v", state.StartedAt)
	}
}

func TestInspect_NotFound(t *testing.T) {
	t.Parallel()

	engine, recorder := newMockDocker(t)
	recorder.ExitCode = 1
	recorder.Stderr = "Error: No such container: demo-db"

	_, err := engine.Inspect(t.Context(), "demo-db")
	if !errors.Is(err, ErrContainerNotFound) {
		t.Errorf("Inspect() error = %v, want ErrContainerNotFound", err)
	}
}

func TestWait(t *testing.T) {
	t.Parallel()

	engine, recorder := newMockDocker(t)
	recorder.Stdout = "17\n"

	code, err := engine.Wait(t.Context(), "demo-app")
	if err != nil || code != 17 {
		t.Errorf("Wait() = %d, %v; want 17, nil", code, err)
	}
}

func TestExec_ExitCode(t *testing.T) {
	t.Parallel()

	engine, recorder := newMockPodman(t)
	recorder.ExitCode = 2

	result, err := engine.Exec(t.Context(), "demo-db", []string{"pg_isready"}, ExecOptions{})
	if err != nil {
		t.Fatalf("Exec() error: %v", err)
	}
	if result.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", result.ExitCode)
	}
}

func TestExistsChecks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		exitCode int
		want     bool
	}{
		{"present", 0, true},
		{"absent", 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			docker, dockerRec := newMockDocker(t)
			dockerRec.ExitCode = tt.exitCode
			podman, podmanRec := newMockPodman(t)
			podmanRec.ExitCode = tt.exitCode

			checks := []struct {
				label    string
				fn       func() (bool, error)
				rec      *MockCommandRecorder
				wantArgs string
			}{
				{"docker image", func() (bool, error) { return docker.ImageExists(t.Context(), "postgres:16") }, dockerRec, "image inspect postgres:16"},
				{"docker volume", func() (bool, error) { return docker.VolumeExists(t.Context(), "demo_pgdata") }, dockerRec, "volume inspect demo_pgdata"},
				{"docker network", func() (bool, error) { return docker.NetworkExists(t.Context(), "demo_default") }, dockerRec, "network inspect demo_default"},
				{"podman image", func() (bool, error) { return podman.ImageExists(t.Context(), "postgres:16") }, podmanRec, "image exists postgres:16"},
				{"podman volume", func() (bool, error) { return podman.VolumeExists(t.Context(), "demo_pgdata") }, podmanRec, "volume exists demo_pgdata"},
				{"podman network", func() (bool, error) { return podman.NetworkExists(t.Context(), "demo_default") }, podmanRec, "network exists demo_default"},
			}
			for _, c := range checks {
				got, err := c.fn()
				if err != nil {
					t.Errorf("%s: unexpected error: %v", c.label, err)
				}
				if got != tt.want {
					t.Errorf("%s = %v, want %v", c.label, got, tt.want)
				}
				c.rec.AssertArgsContain(t, c.wantArgs)
			}
		})
	}
}

func TestStopAndRemove(t *testing.T) {
	t.Parallel()

	engine, recorder := newMockDocker(t)
	if err := engine.Stop(t.Context(), "demo-app", 5*time.Second); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	recorder.AssertArgsContain(t, "stop -t 5 demo-app")

	if err := engine.Remove(t.Context(), "demo-app", true); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	recorder.AssertArgsContain(t, "rm -f demo-app")
}

func TestCommandError_IncludesStderr(t *testing.T) {
	t.Parallel()

	engine, recorder := newMockDocker(t)
	recorder.ExitCode = 1
	recorder.Stderr = "volume is in use"

	err := engine.VolumeRemove(t.Context(), "demo_pgdata")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("VolumeRemove() error = %T, want *CommandError", err)
	}
	if cmdErr.Stderr != "volume is in use" {
		t.Errorf("Stderr = %q", cmdErr.Stderr)
	}
}
