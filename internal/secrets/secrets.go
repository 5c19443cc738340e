// SPDX-License-Identifier: MPL-2.0

package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"stackctl/internal/container"
	"stackctl/internal/issue"
	"stackctl/pkg/stackfile"
)

// Mask replaces redacted values.
const Mask = "********"

// ErrSecretUnavailable is returned when a required secret cannot be resolved.
var ErrSecretUnavailable = errors.New("secret unavailable")

// sensitiveKeyParts mark environment keys whose values are redacted.
var sensitiveKeyParts = []string{"PASSWORD", "SECRET", "TOKEN", "KEY"}

type (
	// LookupEnvFunc reads a host environment variable.
	LookupEnvFunc func(name string) (string, bool)

	// Value holds a secret. It prints as Mask; call Reveal to read it.
	Value struct {
		v string
	}

	// Resolved is what a service receives from its secrets.
	Resolved struct {
		// Mounts are read-only bind mounts of file secrets.
		Mounts []container.VolumeMount
		// Env holds environment secrets keyed by target variable name.
		Env map[string]Value
		// HostPaths are the host files behind Mounts, kept out of build contexts.
		HostPaths []string
	}

	// Resolver resolves secret references against a stack.
	Resolver struct {
		stack     *stackfile.Stack
		lookupEnv LookupEnvFunc
		homeDir   func() (string, error)
	}

	// ResolverOption configures a Resolver.
	ResolverOption func(*Resolver)

	// UnavailableError names a secret that could not be resolved.
	UnavailableError struct {
		Secret  string
		Service string
		Reason  string
	}
)

// NewValue wraps s.
func NewValue(s string) Value { return Value{v: s} }

// Reveal returns the secret content.
func (v Value) Reveal() string { return v.v }

// String implements fmt.Stringer.
func (v Value) String() string { return Mask }

// GoString implements fmt.GoStringer so %#v stays redacted.
func (v Value) GoString() string { return Mask }

// Format implements fmt.Formatter; every verb prints Mask.
func (v Value) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(Mask))
}

// MarshalText keeps the value out of encoded output.
func (v Value) MarshalText() ([]byte, error) { return []byte(Mask), nil }

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("secret %q for service %q is unavailable: %s", e.Secret, e.Service, e.Reason)
}

// Unwrap returns ErrSecretUnavailable for errors.Is() compatibility.
func (e *UnavailableError) Unwrap() error { return ErrSecretUnavailable }

// WithLookupEnv overrides the host environment lookup.
func WithLookupEnv(fn LookupEnvFunc) ResolverOption {
	return func(r *Resolver) { r.lookupEnv = fn }
}

// WithHomeDir overrides the home directory used to expand ~.
func WithHomeDir(fn func() (string, error)) ResolverOption {
	return func(r *Resolver) { r.homeDir = fn }
}

// NewResolver creates a Resolver for stack.
func NewResolver(stack *stackfile.Stack, opts ...ResolverOption) *Resolver {
	r := &Resolver{stack: stack, lookupEnv: os.LookupEnv, homeDir: os.UserHomeDir}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve resolves every secret the service references. Optional secrets
// that are unavailable are skipped.
func (r *Resolver) Resolve(svc *stackfile.Service) (*Resolved, error) {
	res := &Resolved{Env: map[string]Value{}}
	for _, ref := range svc.Secrets {
		sec, ok := r.stack.Secrets[ref.Source]
		if !ok {
			return nil, r.unavailable(svc, ref, "not declared in top-level secrets")
		}

		if sec.Environment != "" {
			val, ok := r.lookupEnv(sec.Environment)
			if !ok {
				if ref.Optional {
					continue
				}
				return nil, r.unavailable(svc, ref, "host environment variable "+sec.Environment+" is not set")
			}
			target := ref.Target
			if target == "" {
				target = strings.ToUpper(ref.Source)
			}
			res.Env[target] = NewValue(val)
			continue
		}

		hostPath, err := r.HostPath(sec)
		if err != nil {
			return nil, r.unavailable(svc, ref, err.Error())
		}
		info, err := os.Stat(hostPath)
		if err != nil || info.IsDir() {
			if ref.Optional {
				continue
			}
			reason := "file " + hostPath + " does not exist"
			if err == nil {
				reason = hostPath + " is a directory"
			} else if !errors.Is(err, fs.ErrNotExist) {
				reason = err.Error()
			}
			return nil, r.unavailable(svc, ref, reason)
		}

		target := ref.Target
		if target == "" {
			target = path.Join(stackfile.SecretsMountDir, ref.Source)
		}
		mount := container.VolumeMount{
			HostPath:      container.HostFilesystemPath(hostPath),
			ContainerPath: container.MountTargetPath(target),
			ReadOnly:      true,
		}
		if err := mount.Validate(); err != nil {
			return nil, r.unavailable(svc, ref, err.Error())
		}
		res.Mounts = append(res.Mounts, mount)
		res.HostPaths = append(res.HostPaths, hostPath)
	}
	return res, nil
}

// HostPath returns the absolute host path of a file secret.
func (r *Resolver) HostPath(sec *stackfile.Secret) (string, error) {
	p := sec.File
	if p == "" {
		return "", errors.New("secret has no file source")
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := r.homeDir()
		if err != nil {
			return "", fmt.Errorf("cannot expand ~: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.stack.Dir, p)
	}
	return filepath.Clean(p), nil
}

// FileSecretPaths returns the host paths of every file secret in the stack,
// whether or not the file exists.
func (r *Resolver) FileSecretPaths() []string {
	var paths []string
	for _, name := range slices.Sorted(maps.Keys(r.stack.Secrets)) {
		sec := r.stack.Secrets[name]
		if sec.File == "" {
			continue
		}
		if p, err := r.HostPath(sec); err == nil {
			paths = append(paths, p)
		}
	}
	return paths
}

func (r *Resolver) unavailable(svc *stackfile.Service, ref stackfile.SecretRef, reason string) error {
	cause := &UnavailableError{Secret: ref.Source, Service: svc.Name, Reason: reason}
	return issue.NewErrorContext().
		WithOperation("resolve secret").
		WithResource(ref.Source).
		WithSuggestions(
			"Create the file or export the variable named in the stack file's secrets section",
			"Mark the reference optional: true if the service can start without it",
		).
		WithIssue(issue.SecretUnavailableId).
		Wrap(cause).
		BuildError()
}

// IsSensitiveKey reports whether an environment key looks like it holds a credential.
func IsSensitiveKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(upper, part) {
			return true
		}
	}
	return false
}

// Redact returns a copy of env with sensitive values and the keys in
// secretKeys replaced by Mask.
func Redact(env map[string]string, secretKeys ...string) map[string]string {
	out := maps.Clone(env)
	if out == nil {
		out = map[string]string{}
	}
	for key, val := range out {
		if val != "" && IsSensitiveKey(key) {
			out[key] = Mask
		}
	}
	for _, key := range secretKeys {
		if _, ok := out[key]; ok {
			out[key] = Mask
		}
	}
	return out
}

// Reveal unwraps every value of env.
func Reveal(env map[string]Value) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v.Reveal()
	}
	return out
}
