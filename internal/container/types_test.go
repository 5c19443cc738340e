// SPDX-License-Identifier: MPL-2.0

package container

import (
	"errors"
	"testing"
)

func TestParsePortMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    PortMapping
		wantErr error
	}{
		{in: "5432:5432", want: PortMapping{HostPort: 5432, ContainerPort: 5432}},
		{in: "15432:5432/tcp", want: PortMapping{HostPort: 15432, ContainerPort: 5432, Protocol: PortProtocolTCP}},
		{in: "53:53/udp", want: PortMapping{HostPort: 53, ContainerPort: 53, Protocol: PortProtocolUDP}},
		{in: "5432", wantErr: ErrInvalidPortMapping},
		{in: "abc:5432", wantErr: ErrInvalidPortMapping},
		{in: "5432:99999", wantErr: ErrInvalidPortMapping},
		{in: "0:5432", wantErr: ErrInvalidPortMapping},
		{in: "80:80/sctp", wantErr: ErrInvalidPortProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParsePortMapping(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParsePortMapping(%q) error = %v, want %v", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePortMapping(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParsePortMapping(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPortMapping_String(t *testing.T) {
	t.Parallel()

	if got := (PortMapping{HostPort: 5432, ContainerPort: 5432, Protocol: PortProtocolTCP}).String(); got != "5432:5432" {
		t.Errorf("String() = %q", got)
	}
	if got := (PortMapping{HostPort: 53, ContainerPort: 53, Protocol: PortProtocolUDP}).String(); got != "53:53/udp" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseVolumeMount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    VolumeMount
		wantErr error
	}{
		{in: ".:/app", want: VolumeMount{HostPath: ".", ContainerPath: "/app"}},
		{in: "pgdata:/var/lib/postgresql/data", want: VolumeMount{HostPath: "pgdata", ContainerPath: "/var/lib/postgresql/data"}},
		{in: "~/.aws/config:/root/.aws/config:ro", want: VolumeMount{HostPath: "~/.aws/config", ContainerPath: "/root/.aws/config", ReadOnly: true}},
		{in: "/src:/app:ro,Z", want: VolumeMount{HostPath: "/src", ContainerPath: "/app", ReadOnly: true, SELinux: SELinuxLabelPrivate}},
		{in: "/src:/app:rw", want: VolumeMount{HostPath: "/src", ContainerPath: "/app"}},
		{in: "/src", wantErr: ErrInvalidVolumeMount},
		{in: "/src:app", wantErr: ErrInvalidMountTargetPath},
		{in: ":/app", wantErr: ErrInvalidHostFilesystemPath},
		{in: "/src:/app:bogus", wantErr: ErrInvalidVolumeMount},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseVolumeMount(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseVolumeMount(%q) error = %v, want %v", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVolumeMount(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseVolumeMount(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestVolumeMount_StringRoundTrip(t *testing.T) {
	t.Parallel()

	for _, in := range []string{".:/app", "/a:/b:ro", "/a:/b:ro,z", "pgdata:/data"} {
		m, err := ParseVolumeMount(in)
		if err != nil {
			t.Fatalf("ParseVolumeMount(%q): %v", in, err)
		}
		if m.String() != in {
			t.Errorf("String() = %q, want %q", m.String(), in)
		}
	}
}

func TestHostFilesystemPath_IsNamedVolume(t *testing.T) {
	t.Parallel()

	tests := map[HostFilesystemPath]bool{
		"pgdata":        true,
		"demo_pgdata":   true,
		".":             false,
		"./src":         false,
		"/var/data":     false,
		"~/.aws":        false,
		"relative/path": false,
		"":              false,
	}
	for in, want := range tests {
		if got := in.IsNamedVolume(); got != want {
			t.Errorf("%q.IsNamedVolume() = %v, want %v", in, got, want)
		}
	}
}

func TestContainerName_Validate(t *testing.T) {
	t.Parallel()

	for _, ok := range []ContainerName{"demo-db", "demo_app.1", "A1"} {
		if err := ok.Validate(); err != nil {
			t.Errorf("%q.Validate() = %v", ok, err)
		}
	}
	for _, bad := range []ContainerName{"", "-db", "has space", "a/b"} {
		if err := bad.Validate(); !errors.Is(err, ErrInvalidContainerName) {
			t.Errorf("%q.Validate() = %v, want ErrInvalidContainerName", bad, err)
		}
	}
}

func TestImageTag_Validate(t *testing.T) {
	t.Parallel()

	if err := ImageTag("python:3.11-slim").Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	if err := ImageTag("").Validate(); !errors.Is(err, ErrInvalidImageTag) {
		t.Errorf("empty tag Validate() = %v", err)
	}
	if err := ImageTag("a b").Validate(); !errors.Is(err, ErrInvalidImageTag) {
		t.Errorf("tag with space Validate() = %v", err)
	}
}

func TestEngineNotAvailableError(t *testing.T) {
	t.Parallel()

	err := error(&EngineNotAvailableError{Engine: "docker", Reason: "not installed"})
	if !errors.Is(err, ErrEngineNotAvailable) {
		t.Error("EngineNotAvailableError should unwrap to ErrEngineNotAvailable")
	}
}
