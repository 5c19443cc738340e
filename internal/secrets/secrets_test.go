// SPDX-License-Identifier: MPL-2.0

package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stackctl/internal/issue"
	"stackctl/pkg/stackfile"
)

func newStack(t *testing.T) *stackfile.Stack {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "db_password.txt"), []byte("hunter2"), 0o600); err != nil {
		t.Fatal(err)
	}
	return &stackfile.Stack{
		Dir: dir,
		Secrets: map[string]*stackfile.Secret{
			"db_password":     {File: "db_password.txt"},
			"aws_credentials": {File: "~/.aws/credentials"},
			"api_token":       {Environment: "STACKCTL_TEST_API_TOKEN"},
			"missing_file":    {File: "nope.txt"},
		},
	}
}

func lookup(vars map[string]string) LookupEnvFunc {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestResolver_FileSecret(t *testing.T) {
	t.Parallel()

	stack := newStack(t)
	svc := &stackfile.Service{Name: "app", Secrets: []stackfile.SecretRef{{Source: "db_password", Target: "/run/secrets/db"}}}

	res, err := NewResolver(stack).Resolve(svc)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(res.Mounts) != 1 {
		t.Fatalf("expected 1 mount, got %d", len(res.Mounts))
	}
	m := res.Mounts[0]
	if !m.ReadOnly {
		t.Error("file secrets must be mounted read-only")
	}
	want := filepath.Join(stack.Dir, "db_password.txt") + ":/run/secrets/db:ro"
	if m.String() != want {
		t.Errorf("mount = %q, want %q", m.String(), want)
	}
	if len(res.HostPaths) != 1 || res.HostPaths[0] != filepath.Join(stack.Dir, "db_password.txt") {
		t.Errorf("HostPaths = %v", res.HostPaths)
	}
}

func TestResolver_HomeExpansion(t *testing.T) {
	t.Parallel()

	stack := newStack(t)
	home := t.TempDir()
	if err := os.MkdirAll(filepath.Join(home, ".aws"), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, ".aws", "credentials"), []byte("[default]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	svc := &stackfile.Service{Name: "app", Secrets: []stackfile.SecretRef{{Source: "aws_credentials", Target: "/root/.aws/credentials"}}}

	r := NewResolver(stack, WithHomeDir(func() (string, error) { return home, nil }))
	res, err := r.Resolve(svc)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got := string(res.Mounts[0].HostPath); got != filepath.Join(home, ".aws", "credentials") {
		t.Errorf("HostPath = %q", got)
	}
}

func TestResolver_EnvSecret(t *testing.T) {
	t.Parallel()

	stack := newStack(t)
	svc := &stackfile.Service{Name: "app", Secrets: []stackfile.SecretRef{{Source: "api_token"}}}

	r := NewResolver(stack, WithLookupEnv(lookup(map[string]string{"STACKCTL_TEST_API_TOKEN": "t0k3n"})))
	res, err := r.Resolve(svc)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	v, ok := res.Env["API_TOKEN"]
	if !ok {
		t.Fatalf("Env = %v, want API_TOKEN", res.Env)
	}
	if v.Reveal() != "t0k3n" {
		t.Errorf("Reveal() = %q", v.Reveal())
	}
	if len(res.Mounts) != 0 {
		t.Errorf("env secrets must not produce mounts: %v", res.Mounts)
	}
}

func TestResolver_Unavailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ref  stackfile.SecretRef
	}{
		{"missing file", stackfile.SecretRef{Source: "missing_file"}},
		{"unset env", stackfile.SecretRef{Source: "api_token"}},
		{"undeclared", stackfile.SecretRef{Source: "ghost"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stack := newStack(t)
			svc := &stackfile.Service{Name: "app", Secrets: []stackfile.SecretRef{tt.ref}}
			_, err := NewResolver(stack, WithLookupEnv(lookup(nil))).Resolve(svc)
			if !errors.Is(err, ErrSecretUnavailable) {
				t.Fatalf("expected ErrSecretUnavailable, got %v", err)
			}
			var ue *UnavailableError
			if !errors.As(err, &ue) || ue.Secret != tt.ref.Source || ue.Service != "app" {
				t.Errorf("UnavailableError = %+v", ue)
			}
			if id, ok := issue.IssueOf(err); !ok || id != issue.SecretUnavailableId {
				t.Errorf("IssueOf() = %v, %v", id, ok)
			}
		})
	}
}

func TestResolver_OptionalSkipped(t *testing.T) {
	t.Parallel()

	stack := newStack(t)
	svc := &stackfile.Service{Name: "app", Secrets: []stackfile.SecretRef{
		{Source: "missing_file", Optional: true},
		{Source: "api_token", Optional: true},
	}}
	res, err := NewResolver(stack, WithLookupEnv(lookup(nil))).Resolve(svc)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(res.Mounts) != 0 || len(res.Env) != 0 {
		t.Errorf("optional missing secrets should be skipped, got %+v", res)
	}
}

func TestResolver_FileSecretPaths(t *testing.T) {
	t.Parallel()

	stack := newStack(t)
	r := NewResolver(stack, WithHomeDir(func() (string, error) { return "/home/me", nil }))
	paths := r.FileSecretPaths()
	want := []string{
		"/home/me/.aws/credentials",
		filepath.Join(stack.Dir, "db_password.txt"),
		filepath.Join(stack.Dir, "nope.txt"),
	}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("FileSecretPaths() = %v, want %v", paths, want)
	}
}

func TestValue_NeverPrints(t *testing.T) {
	t.Parallel()

	v := NewValue("hunter2")
	outputs := []string{
		v.String(),
		fmt.Sprint(v),
		fmt.Sprintf("%s %v %q %+v %#v %x", v, v, v, v, v, v),
		fmt.Sprintf("%v", map[string]Value{"k": v}),
	}
	data, err := json.Marshal(map[string]Value{"k": v})
	if err != nil {
		t.Fatal(err)
	}
	outputs = append(outputs, string(data))

	for _, out := range outputs {
		if strings.Contains(out, "hunter2") {
			t.Errorf("secret leaked: %q", out)
		}
	}
}

func TestRedact(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"DATABASE_HOST":     "db",
		"DATABASE_PASSWORD": "hunter2",
		"POSTGRES_PASSWORD": "hunter2",
		"AWS_ACCESS_KEY_ID": "AKIA",
		"GITHUB_TOKEN":      "ghp",
		"CLIENT_SECRET":     "s",
		"EMPTY_PASSWORD":    "",
		"API_CREDENTIAL":    "c",
	}
	got := Redact(env, "API_CREDENTIAL")

	for _, key := range []string{"DATABASE_PASSWORD", "POSTGRES_PASSWORD", "AWS_ACCESS_KEY_ID", "GITHUB_TOKEN", "CLIENT_SECRET", "API_CREDENTIAL"} {
		if got[key] != Mask {
			t.Errorf("%s = %q, want masked", key, got[key])
		}
	}
	if got["DATABASE_HOST"] != "db" {
		t.Errorf("DATABASE_HOST = %q, want db", got["DATABASE_HOST"])
	}
	if got["EMPTY_PASSWORD"] != "" {
		t.Errorf("empty values stay empty, got %q", got["EMPTY_PASSWORD"])
	}
	if env["DATABASE_PASSWORD"] != "hunter2" {
		t.Error("Redact must not modify its input")
	}
}
