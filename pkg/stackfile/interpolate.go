// SPDX-License-Identifier: MPL-2.0

package stackfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/subosito/gotenv"
	"mvdan.cc/sh/v3/shell"
)

// DotEnvFile is the name of the variable file read next to the stack file.
const DotEnvFile = ".env"

// Stand-ins for "$$", backslashes and backticks while a string is expanded.
// The shell would otherwise treat them as escapes or command substitution.
const (
	escapedDollar    = "\uE000"
	escapedBackslash = "\uE001"
	escapedBacktick  = "\uE002"
)

var (
	protectLiterals = strings.NewReplacer("$$", escapedDollar, `\`, escapedBackslash, "`", escapedBacktick)
	restoreLiterals = strings.NewReplacer(escapedDollar, "$", escapedBackslash, `\`, escapedBacktick, "`")
)

// LookupFunc resolves an interpolation variable.
type LookupFunc func(name string) (string, bool)

// EnvLookup returns a LookupFunc that consults the process environment first
// and then the .env file in dir, if there is one.
func EnvLookup(dir string) (LookupFunc, error) {
	dotenv, err := readDotEnv(filepath.Join(dir, DotEnvFile))
	if err != nil {
		return nil, err
	}
	return func(name string) (string, bool) {
		if v, ok := os.LookupEnv(name); ok {
			return v, true
		}
		v, ok := dotenv[name]
		return v, ok
	}, nil
}

// MapLookup returns a LookupFunc backed by a map.
func MapLookup(vars map[string]string) LookupFunc {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

// Interpolate expands ${VAR}, ${VAR:-default}, ${VAR-default}, ${VAR:?message}
// and $VAR in every string of a decoded document. "$$" yields a literal "$".
// An unset variable without default expands to the empty string.
func Interpolate(tree any, lookup LookupFunc) (any, error) {
	return interpolateNode(tree, lookup, "")
}

func interpolateNode(node any, lookup LookupFunc, path string) (any, error) {
	switch v := node.(type) {
	case string:
		out, err := ExpandString(v, lookup)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", strings.TrimPrefix(path, "."), err)
		}
		return out, nil
	case map[string]any:
		for key, child := range v {
			expanded, err := interpolateNode(child, lookup, path+"."+key)
			if err != nil {
				return nil, err
			}
			v[key] = expanded
		}
		return v, nil
	case []any:
		for i, child := range v {
			expanded, err := interpolateNode(child, lookup, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			v[i] = expanded
		}
		return v, nil
	default:
		return node, nil
	}
}

// ExpandString interpolates a single string.
func ExpandString(s string, lookup LookupFunc) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}
	out, err := shell.Expand(protectLiterals.Replace(s), func(name string) string {
		v, _ := lookup(name)
		return v
	})
	if err != nil {
		return "", fmt.Errorf("interpolate %q: %w", s, err)
	}
	return restoreLiterals.Replace(out), nil
}

func readDotEnv(path string) (gotenv.Env, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return gotenv.Env{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	env, err := gotenv.StrictParse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return env, nil
}
