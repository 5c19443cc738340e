// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"strings"
	"testing"

	"stackctl/pkg/stackfile"
)

func TestGenerateDockerfile_FullRecipe(t *testing.T) {
	t.Parallel()

	recipe := &stackfile.BuildRecipe{
		BaseImage:      "python:3.11-slim",
		Requirements:   "requirements.txt",
		SystemPackages: []string{"libgl1", "libglib2.0-0"},
		Entrypoint:     stackfile.StringList{"python", "main.py"},
		WorkDir:        "/app",
		Env:            stackfile.Environment{"PYTHONUNBUFFERED": "1", "LANG": "C.UTF-8"},
	}

	want := `FROM python:3.11-slim

RUN apt-get update \
    && apt-get install -y --no-install-recommends libgl1 libglib2.0-0 \
    && rm -rf /var/lib/apt/lists/*

COPY requirements.txt /tmp/requirements.txt
RUN pip install --no-cache-dir -r /tmp/requirements.txt

COPY . /app
ENV LANG="C.UTF-8"
ENV PYTHONUNBUFFERED="1"
WORKDIR /app
CMD ["python","main.py"]
`
	if got := GenerateDockerfile(recipe, "requirements.txt"); got != want {
		t.Errorf("GenerateDockerfile() =\n%s\nwant:\n%s", got, want)
	}
}

func TestGenerateDockerfile_EnvQuoting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"plain", "C.UTF-8", `ENV V="C.UTF-8"`},
		{"double quote", `say "hi"`, `ENV V="say \"hi\""`},
		{"backslash", `C:\data`, `ENV V="C:\\data"`},
		{"dollar", "$HOME/bin", `ENV V="\$HOME/bin"`},
		{"tab kept as is", "a\tb", "ENV V=\"a\tb\""},
		{"non-ascii kept as is", "café ✓", `ENV V="café ✓"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			recipe := &stackfile.BuildRecipe{BaseImage: "alpine:3", Env: stackfile.Environment{"V": tt.value}}
			got := GenerateDockerfile(recipe, "")
			if !strings.Contains(got, tt.want+"\n") {
				t.Errorf("expected %s in:\n%s", tt.want, got)
			}
		})
	}
}

func TestGenerateDockerfile_Minimal(t *testing.T) {
	t.Parallel()

	got := GenerateDockerfile(&stackfile.BuildRecipe{BaseImage: "alpine:3"}, "")

	for _, unwanted := range []string{"apt-get", "pip install", "CMD", "ENV"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("minimal Dockerfile should not contain %q:\n%s", unwanted, got)
		}
	}
	if !strings.Contains(got, "WORKDIR "+stackfile.DefaultBuildWorkDir) {
		t.Errorf("expected default WORKDIR, got:\n%s", got)
	}
}

func TestGenerateDockerfile_OrderAndNoSecrets(t *testing.T) {
	t.Parallel()

	recipe := &stackfile.BuildRecipe{
		BaseImage:    "python:3.11-slim",
		Requirements: "deps/requirements.txt",
		Entrypoint:   stackfile.StringList{"python", "main.py"},
		WorkDir:      "/srv/app/",
	}
	got := GenerateDockerfile(recipe, "deps/requirements.txt")

	order := []string{"FROM ", "COPY deps/requirements.txt", "RUN pip install", "COPY . /srv/app", "WORKDIR /srv/app", "CMD "}
	last := -1
	for _, step := range order {
		idx := strings.Index(got, step)
		if idx < 0 {
			t.Fatalf("missing %q in:\n%s", step, got)
		}
		if idx < last {
			t.Errorf("%q is out of order in:\n%s", step, got)
		}
		last = idx
	}
	if strings.Contains(got, ".aws") {
		t.Errorf("Dockerfile must never reference credential files:\n%s", got)
	}
}
