// SPDX-License-Identifier: MPL-2.0

package container

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// PortProtocolTCP is the TCP transport protocol for port mappings.
	PortProtocolTCP PortProtocol = "tcp"
	// PortProtocolUDP is the UDP transport protocol for port mappings.
	PortProtocolUDP PortProtocol = "udp"

	// SELinuxLabelNone means no SELinux label is applied to volume mounts.
	SELinuxLabelNone SELinuxLabel = ""
	// SELinuxLabelShared allows sharing the volume between containers.
	SELinuxLabelShared SELinuxLabel = "z"
	// SELinuxLabelPrivate restricts the volume to a single container.
	SELinuxLabelPrivate SELinuxLabel = "Z"
)

var (
	// ErrInvalidPortProtocol is the sentinel error wrapped by InvalidPortProtocolError.
	ErrInvalidPortProtocol = errors.New("invalid port protocol")

	// ErrInvalidSELinuxLabel is the sentinel error wrapped by InvalidSELinuxLabelError.
	ErrInvalidSELinuxLabel = errors.New("invalid SELinux label")

	// ErrInvalidNetworkPort is the sentinel error wrapped by InvalidNetworkPortError.
	ErrInvalidNetworkPort = errors.New("invalid network port")

	// ErrInvalidHostFilesystemPath is the sentinel error wrapped by InvalidHostFilesystemPathError.
	ErrInvalidHostFilesystemPath = errors.New("invalid host filesystem path")

	// ErrInvalidMountTargetPath is the sentinel error wrapped by InvalidMountTargetPathError.
	ErrInvalidMountTargetPath = errors.New("invalid container filesystem path")

	// ErrInvalidVolumeMount is the sentinel error wrapped by InvalidVolumeMountError.
	ErrInvalidVolumeMount = errors.New("invalid volume mount")

	// ErrInvalidPortMapping is the sentinel error wrapped by InvalidPortMappingError.
	ErrInvalidPortMapping = errors.New("invalid port mapping")

	// ErrInvalidImageTag is the sentinel error wrapped by InvalidImageTagError.
	ErrInvalidImageTag = errors.New("invalid image tag")

	// ErrInvalidContainerName is the sentinel error wrapped by InvalidContainerNameError.
	ErrInvalidContainerName = errors.New("invalid container name")

	// Same rule docker and podman apply to container, volume and network names.
	resourceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
)

type (
	// PortProtocol represents a network transport protocol for port mappings.
	// The zero value ("") is valid and means "default to tcp".
	PortProtocol string

	// InvalidPortProtocolError is returned when a PortProtocol is not a recognized protocol.
	InvalidPortProtocolError struct {
		Value PortProtocol
	}

	// SELinuxLabel represents an SELinux volume labeling option.
	// The zero value ("") means no SELinux label is applied.
	SELinuxLabel string

	// InvalidSELinuxLabelError is returned when an SELinuxLabel is not a recognized label.
	InvalidSELinuxLabelError struct {
		Value SELinuxLabel
	}

	// NetworkPort represents a TCP/UDP port number for container port mappings.
	// A valid port must be greater than zero.
	NetworkPort uint16

	// InvalidNetworkPortError is returned when a NetworkPort value is zero.
	InvalidNetworkPortError struct {
		Value NetworkPort
	}

	// HostFilesystemPath represents a volume source: a filesystem path on the host
	// or the name of a named volume. It must be non-empty and not whitespace-only.
	HostFilesystemPath string

	// InvalidHostFilesystemPathError is returned when a HostFilesystemPath is empty or whitespace-only.
	InvalidHostFilesystemPathError struct {
		Value HostFilesystemPath
	}

	// MountTargetPath represents an absolute filesystem path inside a container.
	MountTargetPath string

	// InvalidMountTargetPathError is returned when a MountTargetPath is empty or relative.
	InvalidMountTargetPathError struct {
		Value MountTargetPath
	}

	// ImageTag is an image reference such as "postgres:16" or "demo-app:3f9c0a1b2c3d".
	ImageTag string

	// InvalidImageTagError is returned when an ImageTag is empty or contains whitespace.
	InvalidImageTagError struct {
		Value ImageTag
	}

	// ContainerName is a container name or ID. Names follow the engine naming rule
	// ([a-zA-Z0-9][a-zA-Z0-9_.-]*).
	ContainerName string

	// InvalidContainerNameError is returned when a ContainerName violates the naming rule.
	InvalidContainerNameError struct {
		Value ContainerName
	}

	// VolumeMount describes a bind or named-volume mount.
	VolumeMount struct {
		HostPath      HostFilesystemPath
		ContainerPath MountTargetPath
		ReadOnly      bool
		SELinux       SELinuxLabel
	}

	// PortMapping describes a published container port.
	PortMapping struct {
		HostPort      NetworkPort
		ContainerPort NetworkPort
		Protocol      PortProtocol
	}

	// InvalidVolumeMountError is returned when a VolumeMount has one or more invalid fields.
	// It wraps the individual field validation errors for inspection.
	InvalidVolumeMountError struct {
		Value     VolumeMount
		FieldErrs []error
	}

	// InvalidPortMappingError is returned when a PortMapping has one or more invalid fields.
	// It wraps the individual field validation errors for inspection.
	InvalidPortMappingError struct {
		Value     PortMapping
		FieldErrs []error
	}
)

// Error implements the error interface.
func (e *InvalidPortProtocolError) Error() string {
	return fmt.Sprintf("invalid port protocol %q (valid: tcp, udp)", e.Value)
}

// Unwrap returns ErrInvalidPortProtocol so callers can use errors.Is for programmatic detection.
func (e *InvalidPortProtocolError) Unwrap() error { return ErrInvalidPortProtocol }

// Validate returns an error if the PortProtocol is not one of the defined protocols.
func (p PortProtocol) Validate() error {
	switch p {
	case PortProtocolTCP, PortProtocolUDP, "":
		return nil
	default:
		return &InvalidPortProtocolError{Value: p}
	}
}

// Error implements the error interface.
func (e *InvalidSELinuxLabelError) Error() string {
	return fmt.Sprintf("invalid SELinux label %q (valid: empty, z, Z)", e.Value)
}

// Unwrap returns ErrInvalidSELinuxLabel so callers can use errors.Is for programmatic detection.
func (e *InvalidSELinuxLabelError) Unwrap() error { return ErrInvalidSELinuxLabel }

// Validate returns an error if the SELinuxLabel is not one of the defined labels.
func (s SELinuxLabel) Validate() error {
	switch s {
	case SELinuxLabelNone, SELinuxLabelShared, SELinuxLabelPrivate:
		return nil
	default:
		return &InvalidSELinuxLabelError{Value: s}
	}
}

// String returns the decimal port number.
func (p NetworkPort) String() string { return strconv.Itoa(int(p)) }

// Validate returns an error if the port is zero.
func (p NetworkPort) Validate() error {
	if p == 0 {
		return &InvalidNetworkPortError{Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidNetworkPortError.
func (e *InvalidNetworkPortError) Error() string {
	return fmt.Sprintf("invalid network port %d: must be greater than zero", e.Value)
}

// Unwrap returns ErrInvalidNetworkPort for errors.Is() compatibility.
func (e *InvalidNetworkPortError) Unwrap() error { return ErrInvalidNetworkPort }

// String returns the string representation of the HostFilesystemPath.
func (p HostFilesystemPath) String() string { return string(p) }

// Validate returns an error if the path is empty or whitespace-only.
func (p HostFilesystemPath) Validate() error {
	if strings.TrimSpace(string(p)) == "" {
		return &InvalidHostFilesystemPathError{Value: p}
	}
	return nil
}

// IsNamedVolume reports whether the source names a volume rather than a host path.
// Host paths are absolute or start with "." or "~".
func (p HostFilesystemPath) IsNamedVolume() bool {
	s := string(p)
	if s == "" {
		return false
	}
	return !strings.HasPrefix(s, "/") && !strings.HasPrefix(s, ".") && !strings.HasPrefix(s, "~") &&
		!strings.Contains(s, "/")
}

// Error implements the error interface for InvalidHostFilesystemPathError.
func (e *InvalidHostFilesystemPathError) Error() string {
	return fmt.Sprintf("invalid host filesystem path %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidHostFilesystemPath for errors.Is() compatibility.
func (e *InvalidHostFilesystemPathError) Unwrap() error { return ErrInvalidHostFilesystemPath }

// String returns the string representation of the MountTargetPath.
func (p MountTargetPath) String() string { return string(p) }

// Validate returns an error unless the path is absolute.
func (p MountTargetPath) Validate() error {
	if !strings.HasPrefix(string(p), "/") {
		return &InvalidMountTargetPathError{Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidMountTargetPathError.
func (e *InvalidMountTargetPathError) Error() string {
	return fmt.Sprintf("invalid container filesystem path %q: must be absolute", e.Value)
}

// Unwrap returns ErrInvalidMountTargetPath for errors.Is() compatibility.
func (e *InvalidMountTargetPathError) Unwrap() error { return ErrInvalidMountTargetPath }

// String returns the string representation of the ImageTag.
func (t ImageTag) String() string { return string(t) }

// Validate returns an error if the tag is empty or contains whitespace.
func (t ImageTag) Validate() error {
	if t == "" || strings.ContainsAny(string(t), " \t\n") {
		return &InvalidImageTagError{Value: t}
	}
	return nil
}

// Error implements the error interface for InvalidImageTagError.
func (e *InvalidImageTagError) Error() string {
	return fmt.Sprintf("invalid image tag %q", e.Value)
}

// Unwrap returns ErrInvalidImageTag for errors.Is() compatibility.
func (e *InvalidImageTagError) Unwrap() error { return ErrInvalidImageTag }

// String returns the string representation of the ContainerName.
func (n ContainerName) String() string { return string(n) }

// Validate returns an error if the name violates the engine naming rule.
func (n ContainerName) Validate() error {
	if !resourceNamePattern.MatchString(string(n)) {
		return &InvalidContainerNameError{Value: n}
	}
	return nil
}

// Error implements the error interface for InvalidContainerNameError.
func (e *InvalidContainerNameError) Error() string {
	return fmt.Sprintf("invalid container name %q: must match [a-zA-Z0-9][a-zA-Z0-9_.-]*", e.Value)
}

// Unwrap returns ErrInvalidContainerName for errors.Is() compatibility.
func (e *InvalidContainerNameError) Unwrap() error { return ErrInvalidContainerName }

// Error implements the error interface for InvalidVolumeMountError.
func (e *InvalidVolumeMountError) Error() string {
	return fmt.Sprintf("invalid volume mount %s:%s: %v",
		e.Value.HostPath, e.Value.ContainerPath, errors.Join(e.FieldErrs...))
}

// Unwrap returns ErrInvalidVolumeMount and the field errors for errors.Is() compatibility.
func (e *InvalidVolumeMountError) Unwrap() []error {
	return append([]error{ErrInvalidVolumeMount}, e.FieldErrs...)
}

// Validate returns an error if any typed field of the VolumeMount is invalid.
func (v VolumeMount) Validate() error {
	var errs []error
	if err := v.HostPath.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := v.ContainerPath.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := v.SELinux.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidVolumeMountError{Value: v, FieldErrs: errs}
	}
	return nil
}

// String returns the volume mount in "host:container[:options]" format, the form
// accepted by the -v flag.
func (v VolumeMount) String() string {
	var result strings.Builder
	result.WriteString(string(v.HostPath))
	result.WriteString(":")
	result.WriteString(string(v.ContainerPath))

	var options []string
	if v.ReadOnly {
		options = append(options, "ro")
	}
	if v.SELinux != "" {
		options = append(options, string(v.SELinux))
	}
	if len(options) > 0 {
		result.WriteString(":")
		result.WriteString(strings.Join(options, ","))
	}
	return result.String()
}

// Error implements the error interface for InvalidPortMappingError.
func (e *InvalidPortMappingError) Error() string {
	return fmt.Sprintf("invalid port mapping %d:%d/%s: %v",
		e.Value.HostPort, e.Value.ContainerPort, e.Value.Protocol, errors.Join(e.FieldErrs...))
}

// Unwrap returns ErrInvalidPortMapping and the field errors for errors.Is() compatibility.
func (e *InvalidPortMappingError) Unwrap() []error {
	return append([]error{ErrInvalidPortMapping}, e.FieldErrs...)
}

// Validate returns an error if any typed field of the PortMapping is invalid.
func (p PortMapping) Validate() error {
	var errs []error
	if err := p.HostPort.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := p.ContainerPort.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := p.Protocol.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidPortMappingError{Value: p, FieldErrs: errs}
	}
	return nil
}

// String returns the port mapping in "host:container[/udp]" format, the form
// accepted by the -p flag.
func (p PortMapping) String() string {
	result := fmt.Sprintf("%d:%d", p.HostPort, p.ContainerPort)
	if p.Protocol != "" && p.Protocol != PortProtocolTCP {
		result += "/" + string(p.Protocol)
	}
	return result
}

// ParseVolumeMount parses "source:target[:options]". Options can include ro, rw, z and Z.
// The result is validated before it is returned.
func ParseVolumeMount(volume string) (VolumeMount, error) {
	mount := VolumeMount{}

	parts := strings.Split(volume, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return mount, fmt.Errorf("%w %q: want source:target[:options]", ErrInvalidVolumeMount, volume)
	}
	mount.HostPath = HostFilesystemPath(parts[0])
	mount.ContainerPath = MountTargetPath(parts[1])
	if len(parts) == 3 {
		for opt := range strings.SplitSeq(parts[2], ",") {
			switch opt {
			case "ro":
				mount.ReadOnly = true
			case "rw", "":
			case "z", "Z":
				mount.SELinux = SELinuxLabel(opt)
			default:
				return mount, fmt.Errorf("%w %q: unknown option %q", ErrInvalidVolumeMount, volume, opt)
			}
		}
	}

	if err := mount.Validate(); err != nil {
		return mount, err
	}
	return mount, nil
}

// ParsePortMapping parses "hostPort:containerPort[/protocol]". The result is validated
// before it is returned.
func ParsePortMapping(portStr string) (PortMapping, error) {
	mapping := PortMapping{}

	parts := strings.SplitN(portStr, ":", 2)
	if len(parts) != 2 {
		return mapping, fmt.Errorf("%w %q: must contain ':' separator", ErrInvalidPortMapping, portStr)
	}

	hostPort, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return mapping, fmt.Errorf("%w: host port %q: %w", ErrInvalidPortMapping, parts[0], err)
	}
	mapping.HostPort = NetworkPort(hostPort)

	containerParts := strings.SplitN(parts[1], "/", 2)
	containerPort, err := strconv.ParseUint(containerParts[0], 10, 16)
	if err != nil {
		return mapping, fmt.Errorf("%w: container port %q: %w", ErrInvalidPortMapping, containerParts[0], err)
	}
	mapping.ContainerPort = NetworkPort(containerPort)

	if len(containerParts) == 2 {
		mapping.Protocol = PortProtocol(containerParts[1])
	}

	if err := mapping.Validate(); err != nil {
		return mapping, err
	}
	return mapping, nil
}
