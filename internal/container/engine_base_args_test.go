// SPDX-License-Identifier: MPL-2.0

package container

import (
	"slices"
	"testing"
	"time"
)

func TestBuildArgs(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("/usr/bin/docker")

	tests := []struct {
		name string
		opts BuildOptions
		want []string
	}{
		{
			name: "minimal",
			opts: BuildOptions{ContextDir: "/src", Tag: "demo-app:abc"},
			want: []string{"build", "-t", "demo-app:abc", "/src"},
		},
		{
			name: "relative dockerfile resolved against context",
			opts: BuildOptions{ContextDir: "/src", Dockerfile: "Dockerfile.stackctl", Tag: "t"},
			want: []string{"build", "-f", "/src/Dockerfile.stackctl", "-t", "t", "/src"},
		},
		{
			name: "absolute dockerfile, no cache, sorted labels and build args",
			opts: BuildOptions{
				ContextDir: "/src",
				Dockerfile: "/tmp/x/Dockerfile",
				Tag:        "t",
				NoCache:    true,
				Labels:     map[string]string{LabelService: "app", LabelProject: "demo"},
				BuildArgs:  map[string]string{"B": "2", "A": "1"},
			},
			want: []string{
				"build", "-f", "/tmp/x/Dockerfile", "-t", "t", "--no-cache",
				"--label", "io.stackctl.project=demo", "--label", "io.stackctl.service=app",
				"--build-arg", "A=1", "--build-arg", "B=2",
				"/src",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := e.BuildArgs(tt.opts); !slices.Equal(got, tt.want) {
				t.Errorf("BuildArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunArgs_Detached(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("/usr/bin/docker")
	opts := RunOptions{
		Image:          "demo-app:abc",
		Name:           "demo-app",
		Detach:         true,
		Network:        "demo_default",
		NetworkAliases: []string{"app"},
		Labels:         map[string]string{LabelProject: "demo", LabelService: "app"},
		WorkDir:        "/app",
		Env:            map[string]string{"DATABASE_PORT": "5432", "DATABASE_HOST": "db"},
		SecretEnv:      map[string]string{"API_TOKEN": "s3cret"},
		Volumes: []VolumeMount{
			{HostPath: "/home/u/proj", ContainerPath: "/app"},
			{HostPath: "/home/u/.aws/credentials", ContainerPath: "/root/.aws/credentials", ReadOnly: true},
		},
		Ports:   []PortMapping{{HostPort: 8080, ContainerPort: 80}},
		Command: []string{"python", "main.py"},
	}

	want := []string{
		"run", "-d", "--name", "demo-app",
		"--network", "demo_default", "--network-alias", "app",
		"--label", "io.stackctl.project=demo", "--label", "io.stackctl.service=app",
		"-w", "/app",
		"-e", "DATABASE_HOST=db", "-e", "DATABASE_PORT=5432",
		"-e", "API_TOKEN",
		"-v", "/home/u/proj:/app",
		"-v", "/home/u/.aws/credentials:/root/.aws/credentials:ro",
		"-p", "8080:80",
		"demo-app:abc", "python", "main.py",
	}

	if got := e.RunArgs(opts); !slices.Equal(got, want) {
		t.Errorf("RunArgs() =\n%v\nwant\n%v", got, want)
	}
}

func TestRunArgs_AppliesVolumeFormatter(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("/usr/bin/podman",
		WithVolumeFormatter(makeSELinuxLabelAdder(func() bool { return true })))
	args := e.RunArgs(RunOptions{
		Image: "postgres:16",
		Volumes: []VolumeMount{
			{HostPath: "demo_pgdata", ContainerPath: "/var/lib/postgresql/data"},
			{HostPath: "/src", ContainerPath: "/app"},
		},
	})

	if !slices.Contains(args, "demo_pgdata:/var/lib/postgresql/data") {
		t.Errorf("named volume should not be labeled: %v", args)
	}
	if !slices.Contains(args, "/src:/app:z") {
		t.Errorf("bind mount should get :z: %v", args)
	}
}

func TestSmallArgBuilders(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("/usr/bin/docker")

	tests := []struct {
		name string
		got  []string
		want []string
	}{
		{"pull", e.PullArgs("postgres:16"), []string{"pull", "postgres:16"}},
		{"exec", e.ExecArgs("demo-db", []string{"pg_isready", "-U", "postgres"}, ExecOptions{
			WorkDir: "/tmp", Env: map[string]string{"PGCONNECT_TIMEOUT": "2"},
		}), []string{"exec", "-w", "/tmp", "-e", "PGCONNECT_TIMEOUT=2", "demo-db", "pg_isready", "-U", "postgres"}},
		{"stop", e.StopArgs("demo-db", 10*time.Second), []string{"stop", "-t", "10", "demo-db"}},
		{"rm", e.RemoveArgs("demo-db", false), []string{"rm", "demo-db"}},
		{"rm force", e.RemoveArgs("demo-db", true), []string{"rm", "-f", "demo-db"}},
		{"rmi", e.RemoveImageArgs("demo-app:abc", true), []string{"rmi", "-f", "demo-app:abc"}},
		{"inspect", e.InspectArgs("demo-db"), []string{"inspect", "--type", "container", "--format", "{{json .State}}", "demo-db"}},
		{"logs", e.LogsArgs("demo-app", LogsOptions{}), []string{"logs", "demo-app"}},
		{"logs follow tail", e.LogsArgs("demo-app", LogsOptions{Follow: true, Tail: 50}), []string{"logs", "--follow", "--tail", "50", "demo-app"}},
		{"wait", e.WaitArgs("demo-app"), []string{"wait", "demo-app"}},
		{"volume create", e.VolumeCreateArgs("demo_pgdata", map[string]string{LabelProject: "demo"}),
			[]string{"volume", "create", "--label", "io.stackctl.project=demo", "demo_pgdata"}},
		{"volume rm", e.VolumeRemoveArgs("demo_pgdata"), []string{"volume", "rm", "demo_pgdata"}},
		{"network create", e.NetworkCreateArgs("demo_default", nil), []string{"network", "create", "demo_default"}},
		{"network rm", e.NetworkRemoveArgs("demo_default"), []string{"network", "rm", "demo_default"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if !slices.Equal(tt.got, tt.want) {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}
