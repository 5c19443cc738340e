// SPDX-License-Identifier: MPL-2.0

package stackfile

import (
	"encoding/json"
	"slices"
	"testing"
	"time"
)

func TestStringList_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    []string
		wantErr bool
	}{
		{name: "shell words", in: `"python main.py"`, want: []string{"python", "main.py"}},
		{name: "quoted word", in: `"sh -c 'echo hi there'"`, want: []string{"sh", "-c", "echo hi there"}},
		{name: "variable stays literal", in: `"echo $HOME"`, want: []string{"echo", "$HOME"}},
		{name: "list", in: `["pg_isready", "-U", 5]`, want: []string{"pg_isready", "-U", "5"}},
		{name: "null", in: `null`, want: nil},
		{name: "object", in: `{"a": 1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got StringList
			err := json.Unmarshal([]byte(tt.in), &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !slices.Equal(got, tt.want) {
				t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEnvironment_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	var fromMap Environment
	if err := json.Unmarshal([]byte(`{"A": "1", "B": 2, "C": true, "D": null}`), &fromMap); err != nil {
		t.Fatalf("map form: %v", err)
	}
	want := Environment{"A": "1", "B": "2", "C": "true", "D": ""}
	for k, v := range want {
		if fromMap[k] != v {
			t.Errorf("map form %s = %q, want %q", k, fromMap[k], v)
		}
	}

	var fromList Environment
	if err := json.Unmarshal([]byte(`["A=1", "B=x=y", "C"]`), &fromList); err != nil {
		t.Fatalf("list form: %v", err)
	}
	if fromList["A"] != "1" || fromList["B"] != "x=y" || fromList["C"] != "" {
		t.Errorf("list form = %v", fromList)
	}

	var bad Environment
	if err := json.Unmarshal([]byte(`[1]`), &bad); err == nil {
		t.Error("expected error for non-string list entry")
	}
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{`"500ms"`, 500 * time.Millisecond, false},
		{`"2m"`, 2 * time.Minute, false},
		{`30`, 30 * time.Second, false},
		{`1.5`, 1500 * time.Millisecond, false},
		{`""`, 0, false},
		{`"-1s"`, 0, true},
		{`"soon"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			var d Duration
			err := json.Unmarshal([]byte(tt.in), &d)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && d.Std() != tt.want {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, d.Std(), tt.want)
			}
		})
	}
}

func TestSecretRef_ShortForm(t *testing.T) {
	t.Parallel()

	var refs []SecretRef
	if err := json.Unmarshal([]byte(`["aws", {"source": "tok", "target": "TOKEN", "optional": true}]`), &refs); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if refs[0].Source != "aws" || refs[0].Target != "" {
		t.Errorf("short form = %+v", refs[0])
	}
	if refs[1] != (SecretRef{Source: "tok", Target: "TOKEN", Optional: true}) {
		t.Errorf("long form = %+v", refs[1])
	}
}

func TestIsPostgresImage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		image string
		want  bool
	}{
		{"postgres", true},
		{"postgres:16", true},
		{"docker.io/library/postgres:16-alpine", true},
		{"postgres@sha256:abc", true},
		{"postgres-exporter", false},
		{"bitnami/postgresql", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.image, func(t *testing.T) {
			t.Parallel()
			if got := IsPostgresImage(tt.image); got != tt.want {
				t.Errorf("IsPostgresImage(%q) = %v, want %v", tt.image, got, tt.want)
			}
		})
	}
}

func TestStack_Names(t *testing.T) {
	t.Parallel()

	s := &Stack{Name: "My_Project!", Dir: "/tmp/ignored"}
	if got := s.ProjectName(); got != "my_project" {
		t.Errorf("ProjectName() = %q, want my_project", got)
	}
	if got := s.ContainerName("db"); got != "my_project-db" {
		t.Errorf("ContainerName() = %q", got)
	}
	if got := s.NetworkName(); got != "my_project_default" {
		t.Errorf("NetworkName() = %q", got)
	}
	if got := s.VolumeName("pgdata"); got != "my_project_pgdata" {
		t.Errorf("VolumeName() = %q", got)
	}

	fromDir := &Stack{Dir: "/home/me/OCR Pipeline"}
	if got := fromDir.ProjectName(); got != "ocrpipeline" {
		t.Errorf("ProjectName() from dir = %q, want ocrpipeline", got)
	}
	if got := (&Stack{Dir: "/"}).ProjectName(); got != defaultProjectName {
		t.Errorf("ProjectName() fallback = %q, want %q", got, defaultProjectName)
	}
}
