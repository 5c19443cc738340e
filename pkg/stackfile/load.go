// SPDX-License-Identifier: MPL-2.0

package stackfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"stackctl/internal/cueutil"
)

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatCUE  Format = "cue"
)

var (
	// ErrStackNotFound is returned when the stack file does not exist.
	ErrStackNotFound = errors.New("stack file not found")
	// ErrUnsupportedFormat is returned for a stack file extension that has no decoder.
	ErrUnsupportedFormat = errors.New("unsupported stack file format")

	//go:embed stack_schema.cue
	stackSchema []byte
)

type (
	// Format is a stack file encoding.
	Format string

	// LoadOption configures Load.
	LoadOption func(*loadOptions)

	loadOptions struct {
		lookup LookupFunc
	}

	// ParseError is returned when a stack file cannot be decoded.
	ParseError struct {
		Path string
		Err  error
	}

	// document is the top level of a stack file. Version is accepted for
	// compose compatibility and ignored.
	document struct {
		Version string `json:"version,omitempty"`
		Stack
	}
)

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying decode error.
func (e *ParseError) Unwrap() []error { return []error{ErrInvalidStack, e.Err} }

// WithLookup overrides the variable lookup used for interpolation.
func WithLookup(lookup LookupFunc) LoadOption {
	return func(o *loadOptions) { o.lookup = lookup }
}

// FormatFromPath returns the format implied by the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads, interpolates and decodes the stack file at path, applies
// defaults and validates the result.
func Load(path string, opts ...LoadOption) (*Stack, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	format, err := FormatFromPath(absPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStackNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	dir := filepath.Dir(absPath)
	options := loadOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.lookup == nil {
		if options.lookup, err = EnvLookup(dir); err != nil {
			return nil, err
		}
	}

	stack, err := Parse(data, format, absPath, options.lookup)
	if err != nil {
		return nil, err
	}
	if err := stack.Validate(); err != nil {
		return nil, err
	}
	return stack, nil
}

// Parse decodes data in the given format, interpolates variables and applies
// defaults. It does not validate. path names the source in errors and sets
// the stack directory.
func Parse(data []byte, format Format, path string, lookup LookupFunc) (*Stack, error) {
	tree, err := decodeTree(data, format, path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if tree == nil {
		return nil, &ParseError{Path: path, Err: errors.New("empty stack file")}
	}

	if lookup == nil {
		lookup = MapLookup(nil)
	}
	tree, err = Interpolate(tree, lookup)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	stack, err := decodeStack(tree)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	stack.Path = path
	stack.Dir = filepath.Dir(path)
	stack.applyDefaults()
	return stack, nil
}

func decodeTree(data []byte, format Format, path string) (any, error) {
	switch format {
	case FormatYAML:
		var tree any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, err
		}
		return normalizeYAML(tree)
	case FormatTOML:
		var tree map[string]any
		if err := toml.Unmarshal(data, &tree); err != nil {
			return nil, err
		}
		return tree, nil
	case FormatCUE:
		result, err := cueutil.ParseAndDecode[map[string]any](stackSchema, data, "#Stack",
			cueutil.WithFilename(filepath.Base(path)))
		if err != nil {
			return nil, err
		}
		return *result.Value, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// normalizeYAML converts map[any]any nodes (non-string keys) into map[string]any.
func normalizeYAML(node any) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			n, err := normalizeYAML(child)
			if err != nil {
				return nil, err
			}
			v[key] = n
		}
		return v, nil
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			n, err := normalizeYAML(child)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(key)] = n
		}
		return out, nil
	case []any:
		for i, child := range v {
			n, err := normalizeYAML(child)
			if err != nil {
				return nil, err
			}
			v[i] = n
		}
		return v, nil
	default:
		return node, nil
	}
}

// decodeStack maps the generic tree onto the typed model. Unknown keys are errors.
func decodeStack(tree any) (*Stack, error) {
	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return &doc.Stack, nil
}
