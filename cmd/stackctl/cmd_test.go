// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stackctl/internal/config"
	"stackctl/internal/container"
	"stackctl/internal/issue"
	"stackctl/internal/secrets"
	"stackctl/internal/testutil"
	"stackctl/internal/testutil/enginetest"
	"stackctl/pkg/stackfile"
)

const testStack = `
name: ocr
services:
  app:
    build:
      base_image: python:3.11-slim
      requirements: requirements.txt
      entrypoint: [python, main.py]
    working_dir: /app
    volumes:
      - .:/app
    depends_on:
      - db
    environment:
      DATABASE_HOST: db
      DATABASE_PASSWORD: ${DATABASE_PASSWORD:-changeme}
    secrets:
      - source: aws_credentials
        target: /root/.aws/credentials
      - source: api_token
  db:
    image: postgres:16
    environment:
      POSTGRES_DB: ocr
      POSTGRES_USER: ocr
      POSTGRES_PASSWORD: ${DATABASE_PASSWORD:-changeme}
    volumes:
      - pgdata:/var/lib/postgresql/data
volumes:
  pgdata:
secrets:
  aws_credentials:
    file: ./aws/credentials
  api_token:
    environment: OCR_API_TOKEN
`

type (
	// fixedConfig returns the same configuration for every Load.
	fixedConfig struct {
		cfg *config.Config
		err error
	}

	testHarness struct {
		app       *App
		engine    *enginetest.Engine
		stackPath string
		stdout    *bytes.Buffer
		stderr    *bytes.Buffer
	}
)

func (f fixedConfig) Load(context.Context, config.LoadOptions) (*config.Config, error) {
	if f.err != nil {
		return nil, f.err
	}
	cfg := *f.cfg
	return &cfg, nil
}

// newHarness writes testStack into a project directory and wires an App to
// an in-memory engine.
func newHarness(t *testing.T, engine *enginetest.Engine) *testHarness {
	t.Helper()

	dir := t.TempDir()
	stackPath := testutil.MustWriteFile(t, dir, "stack.yaml", testStack)
	testutil.MustWriteFile(t, dir, "main.py", "print('ocr')\n")
	testutil.MustWriteFile(t, dir, "requirements.txt", "psycopg2-binary\n")
	testutil.MustWriteFile(t, dir, filepath.Join("aws", "credentials"), "[default]\naws_access_key_id = AKIA\n")

	h := &testHarness{engine: engine, stackPath: stackPath, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	home := t.TempDir()
	app, err := NewApp(Dependencies{
		Config: fixedConfig{cfg: config.DefaultConfig()},
		Engines: func(container.EngineType) (container.Engine, error) {
			return engine, nil
		},
		LookupEnv:   secrets.LookupEnvFunc(stackfile.MapLookup(map[string]string{"OCR_API_TOKEN": "tok-123"})),
		StackLookup: stackfile.MapLookup(map[string]string{"DATABASE_PASSWORD": "s3cret"}),
		HomeDir:     func() (string, error) { return home, nil },
		BuildRoot:   t.TempDir(),
		Stdout:      h.stdout,
		Stderr:      h.stderr,
	})
	if err != nil {
		t.Fatalf("NewApp() error: %v", err)
	}
	h.app = app
	return h
}

func (h *testHarness) run(t *testing.T, args ...string) error {
	t.Helper()
	root := NewRootCommand(h.app)
	root.SetOut(h.stdout)
	root.SetErr(h.stderr)
	root.SetArgs(append([]string{"--file", h.stackPath}, args...))
	return root.ExecuteContext(context.Background())
}

func TestUpCommand_StartsDatabaseBeforeApp(t *testing.T) {
	t.Parallel()

	engine := enginetest.New()
	h := newHarness(t, engine)

	if err := h.run(t, "up"); err != nil {
		t.Fatalf("up error: %v\nstderr: %s", err, h.stderr)
	}

	runDB := engine.EventIndex("run ocr-db")
	probe := engine.EventIndex("exec ocr-db pg_isready -h 127.0.0.1 -U ocr -d ocr")
	runApp := engine.EventIndex("run ocr-app")
	if runDB < 0 || probe < 0 || runApp < 0 || !(runDB < probe && probe < runApp) {
		t.Errorf("want run db < probe < run app, got %v", engine.Events())
	}
	if !strings.Contains(h.stdout.String(), "is up") {
		t.Errorf("stdout = %q, want success line", h.stdout)
	}
}

func TestUpCommand_AttachReturnsExitCode(t *testing.T) {
	t.Parallel()

	engine := enginetest.New().
		WithExitCode("ocr-app", 3).
		WithLogs("ocr-app", "processed 12 documents\n")
	h := newHarness(t, engine)

	err := h.run(t, "up", "--attach", "app")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("up --attach error = %v, want *ExitError", err)
	}
	if exitErr.Code != 3 {
		t.Errorf("exit code = %d, want 3", exitErr.Code)
	}
	if !strings.Contains(h.stdout.String(), "processed 12 documents") {
		t.Errorf("stdout = %q, want the app output", h.stdout)
	}
	if strings.Contains(h.stderr.String(), "Error:") {
		t.Errorf("a bare exit code must not print an error, stderr = %q", h.stderr)
	}
}

func TestUpCommand_AttachAndWatchAreExclusive(t *testing.T) {
	t.Parallel()

	h := newHarness(t, enginetest.New())
	if err := h.run(t, "up", "--attach", "app", "--watch"); err == nil {
		t.Fatal("expected error for --attach with --watch")
	}
}

func TestDownCommand_RemovesVolumesOnlyWhenAsked(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		args       []string
		wantVolume bool
	}{
		{"keeps volumes", []string{"down"}, true},
		{"removes volumes", []string{"down", "--volumes"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			engine := enginetest.New()
			h := newHarness(t, engine)
			if err := h.run(t, "up"); err != nil {
				t.Fatalf("up error: %v", err)
			}
			if err := h.run(t, tt.args...); err != nil {
				t.Fatalf("down error: %v\nstderr: %s", err, h.stderr)
			}

			if engine.HasContainer("ocr-app") || engine.HasContainer("ocr-db") {
				t.Errorf("containers remain after down: %v", engine.Events())
			}
			if got := engine.HasVolume("ocr_pgdata"); got != tt.wantVolume {
				t.Errorf("HasVolume(ocr_pgdata) = %v, want %v", got, tt.wantVolume)
			}
		})
	}
}

func TestBuildCommand(t *testing.T) {
	t.Parallel()

	engine := enginetest.New()
	h := newHarness(t, engine)

	if err := h.run(t, "build"); err != nil {
		t.Fatalf("build error: %v\nstderr: %s", err, h.stderr)
	}
	if len(engine.BuildCalls) != 1 {
		t.Errorf("BuildCalls = %d, want 1", len(engine.BuildCalls))
	}
	if !strings.Contains(h.stdout.String(), "ocr-app:") {
		t.Errorf("stdout = %q, want the built tag", h.stdout)
	}
}

func TestStatusCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t, enginetest.New())
	if err := h.run(t, "up"); err != nil {
		t.Fatalf("up error: %v", err)
	}
	h.stdout.Reset()

	if err := h.run(t, "status"); err != nil {
		t.Fatalf("status error: %v\nstderr: %s", err, h.stderr)
	}
	out := h.stdout.String()
	for _, want := range []string{"SERVICE", "ocr-db", "ocr-app", "running"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusCommand_DatabaseNotRunning(t *testing.T) {
	t.Parallel()

	h := newHarness(t, enginetest.New())
	if err := h.run(t, "status", "--db"); err != nil {
		t.Fatalf("status --db error: %v", err)
	}
	if !strings.Contains(h.stdout.String(), "not running") {
		t.Errorf("stdout = %q, want db reported as not running", h.stdout)
	}
}

func TestPlanCommand_Raw(t *testing.T) {
	t.Parallel()

	engine := enginetest.New()
	h := newHarness(t, engine)

	if err := h.run(t, "plan", "--raw"); err != nil {
		t.Fatalf("plan error: %v\nstderr: %s", err, h.stderr)
	}
	out := h.stdout.String()
	if !strings.HasPrefix(out, "# Plan for") {
		t.Errorf("plan output = %q, want Markdown heading", out)
	}
	if strings.Contains(out, "tok-123") || strings.Contains(out, "s3cret") {
		t.Errorf("plan leaks a secret:\n%s", out)
	}
	if len(engine.Events()) != 0 {
		t.Errorf("plan must not touch the engine, got %v", engine.Events())
	}
}

func TestEnvCommand_RedactsSecrets(t *testing.T) {
	t.Parallel()

	h := newHarness(t, enginetest.New())
	if err := h.run(t, "env", "app"); err != nil {
		t.Fatalf("env error: %v\nstderr: %s", err, h.stderr)
	}

	out := h.stdout.String()
	for _, want := range []string{"DATABASE_HOST=db\n", "API_TOKEN='********'\n", "DATABASE_PASSWORD='********'\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("env output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "tok-123") || strings.Contains(out, "s3cret") {
		t.Errorf("env leaks a secret:\n%s", out)
	}
}

func TestEnvCommand_UnknownService(t *testing.T) {
	t.Parallel()

	h := newHarness(t, enginetest.New())
	if err := h.run(t, "env", "worker"); err == nil {
		t.Fatal("expected error for unknown service")
	}
	if !strings.Contains(h.stderr.String(), "worker") {
		t.Errorf("stderr = %q, want the service name", h.stderr)
	}
}

func TestInitCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t, enginetest.New())
	dir := filepath.Join(t.TempDir(), "project")

	if err := h.run(t, "init", dir); err != nil {
		t.Fatalf("init error: %v\nstderr: %s", err, h.stderr)
	}
	for _, name := range []string{"stack.yaml", ".env.example", "requirements.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
	if _, err := stackfile.Load(filepath.Join(dir, "stack.yaml"), stackfile.WithLookup(stackfile.MapLookup(nil))); err != nil {
		t.Errorf("generated stack does not load: %v", err)
	}

	if err := h.run(t, "init", dir); err == nil {
		t.Fatal("second init without --force should fail")
	}
	if !strings.Contains(h.stderr.String(), "--force") {
		t.Errorf("stderr = %q, want --force hint", h.stderr)
	}
	if err := h.run(t, "init", dir, "--force"); err != nil {
		t.Errorf("init --force error: %v", err)
	}
}

func TestStackFileNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, enginetest.New())
	h.stackPath = filepath.Join(t.TempDir(), "missing.yaml")

	err := h.run(t, "up")
	if err == nil {
		t.Fatal("expected error for missing stack file")
	}
	if id, ok := issue.IssueOf(err); !ok || id != issue.StackfileNotFoundId {
		t.Errorf("IssueOf() = %v, %v, want StackfileNotFoundId", id, ok)
	}
	if !strings.Contains(h.stderr.String(), "Error:") {
		t.Errorf("stderr = %q, want error line", h.stderr)
	}
}

func TestEngineNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, enginetest.New())
	h.app.Engines = func(container.EngineType) (container.Engine, error) {
		return nil, container.ErrEngineNotAvailable
	}

	err := h.run(t, "up")
	if id, ok := issue.IssueOf(err); !ok || id != issue.ContainerEngineNotFoundId {
		t.Errorf("IssueOf(%v) = %v, %v, want ContainerEngineNotFoundId", err, id, ok)
	}

	// plan renders commands only and falls back to the CLI engine.
	h.stdout.Reset()
	if err := h.run(t, "plan", "--raw"); err != nil {
		t.Fatalf("plan without engine error: %v", err)
	}
	if !strings.Contains(h.stdout.String(), "docker") {
		t.Errorf("plan output should name the docker fallback:\n%s", h.stdout)
	}
}

func TestConfigLoadFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, enginetest.New())
	h.app.Config = fixedConfig{err: config.ErrInvalidConfig}

	if err := h.run(t, "status"); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("status error = %v, want ErrInvalidConfig", err)
	}
}

func TestConfigCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t, enginetest.New())
	h.app.Config = config.NewProvider()
	cfgDir := t.TempDir()
	wantPath := filepath.Join(cfgDir, config.ConfigFileName+"."+config.ConfigFileExt)

	if err := h.run(t, "--config-dir", cfgDir, "config", "path"); err != nil {
		t.Fatalf("config path error: %v", err)
	}
	if got := strings.TrimSpace(h.stdout.String()); got != wantPath {
		t.Errorf("config path = %q, want %q", got, wantPath)
	}

	h.stdout.Reset()
	if err := h.run(t, "--config-dir", cfgDir, "config", "show"); err != nil {
		t.Fatalf("config show error: %v\nstderr: %s", err, h.stderr)
	}
	if out := h.stdout.String(); !strings.Contains(out, "using defaults") || !strings.Contains(out, "docker") {
		t.Errorf("config show output:\n%s", out)
	}

	h.stdout.Reset()
	if err := h.run(t, "--config-dir", cfgDir, "config", "init"); err != nil {
		t.Fatalf("config init error: %v", err)
	}
	if _, err := os.Stat(wantPath); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	h.stdout.Reset()
	if err := h.run(t, "--config-dir", cfgDir, "config", "init"); err != nil {
		t.Fatalf("second config init error: %v", err)
	}
	if !strings.Contains(h.stdout.String(), "already exists") {
		t.Errorf("stdout = %q, want already-exists notice", h.stdout)
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{"stack not found", stackfile.ErrStackNotFound, issue.StackfileNotFoundId},
		{"invalid stack", stackfile.ErrInvalidStack, issue.StackfileInvalidId},
		{"engine", container.ErrEngineNotAvailable, issue.ContainerEngineNotFoundId},
		{"config", config.ErrInvalidConfig, issue.ConfigLoadFailedId},
		{"actionable wins", issue.NewErrorContext().WithIssue(issue.PortAllocatedId).Wrap(stackfile.ErrInvalidStack).BuildError(), issue.PortAllocatedId},
		{"unknown", errors.New("boom"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestExitError(t *testing.T) {
	t.Parallel()

	bare := &ExitError{Code: 2}
	if bare.Error() != "exit status 2" {
		t.Errorf("Error() = %q", bare.Error())
	}
	wrapped := &ExitError{Code: 1, Err: config.ErrInvalidConfig}
	if !errors.Is(wrapped, config.ErrInvalidConfig) {
		t.Error("ExitError should unwrap to its cause")
	}
}
