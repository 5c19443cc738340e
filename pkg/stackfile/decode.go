// SPDX-License-Identifier: MPL-2.0

package stackfile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mvdan.cc/sh/v3/shell"
)

type (
	// StringList accepts a list of scalars, or a single string that is split
	// into words with shell quoting rules ("python main.py").
	StringList []string

	// Environment accepts a map of scalars or a list of KEY=VALUE strings.
	Environment map[string]string

	// DependsOn accepts a list of service names or a map of name to {condition}.
	DependsOn map[string]Dependency
)

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*l = nil
	case string:
		// Variables were interpolated already; a remaining $NAME stays literal.
		words, err := shell.Fields(v, func(name string) string { return "$" + name })
		if err != nil {
			return fmt.Errorf("split %q: %w", v, err)
		}
		*l = words
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := scalarString(item)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		*l = out
	default:
		return fmt.Errorf("expected string or list, got %T", raw)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Environment) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	env := Environment{}
	switch v := raw.(type) {
	case nil:
	case map[string]any:
		for key, val := range v {
			s, err := scalarString(val)
			if err != nil {
				return fmt.Errorf("environment %s: %w", key, err)
			}
			env[key] = s
		}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("environment entry %v: expected KEY=VALUE string", item)
			}
			key, val, _ := strings.Cut(s, "=")
			env[key] = val
		}
	default:
		return fmt.Errorf("environment: expected map or list, got %T", raw)
	}
	*e = env
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *DependsOn) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		deps := DependsOn{}
		for _, name := range list {
			deps[name] = Dependency{}
		}
		*d = deps
		return nil
	}

	var m map[string]*Dependency
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("depends_on: expected list of names or map of name to {condition}")
	}
	deps := DependsOn{}
	for name, dep := range m {
		if dep == nil {
			dep = &Dependency{}
		}
		deps[name] = *dep
	}
	*d = deps
	return nil
}

// UnmarshalJSON accepts the short form "source" as well as {source, target, optional}.
func (r *SecretRef) UnmarshalJSON(data []byte) error {
	var source string
	if err := json.Unmarshal(data, &source); err == nil {
		*r = SecretRef{Source: source}
		return nil
	}
	type plain SecretRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = SecretRef(p)
	return nil
}

// UnmarshalJSON accepts the short form "build: <context>" as well as the full recipe.
func (b *BuildRecipe) UnmarshalJSON(data []byte) error {
	var context string
	if err := json.Unmarshal(data, &context); err == nil {
		*b = BuildRecipe{Context: context}
		return nil
	}
	type plain BuildRecipe
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = BuildRecipe(p)
	return nil
}

// UnmarshalJSON accepts a Go duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*d = 0
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	case string:
		if v == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		if parsed < 0 {
			return fmt.Errorf("invalid duration %q: must not be negative", v)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
	return nil
}

// MarshalJSON renders the duration as a Go duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func scalarString(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case bool:
		return strconv.FormatBool(s), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("expected scalar value, got %T", v)
	}
}
