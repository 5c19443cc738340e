// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates CUE documents against an embedded schema and decodes
// them into Go values. It backs both the global config file and .cue stack files:
//
//	//go:embed stack_schema.cue
//	var schema []byte
//
//	res, err := cueutil.ParseAndDecode[map[string]any](schema, data, "#Stack",
//		cueutil.WithFilename("stack.cue"))
package cueutil
