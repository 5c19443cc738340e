// SPDX-License-Identifier: MPL-2.0

package readiness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/lib/pq"

	"stackctl/internal/container"
	"stackctl/pkg/stackfile"
)

const (
	defaultPostgresUser = "postgres"
	probeHost           = "localhost"
)

type (
	// Probe performs a single readiness check. A nil error means ready.
	Probe interface {
		Check(ctx context.Context) error
		// String describes the probe for logs and plans.
		String() string
	}

	// PostgresProbe connects to a PostgreSQL server and pings it.
	PostgresProbe struct {
		Conn PostgresConn
	}

	// PostgresConn holds connection parameters.
	PostgresConn struct {
		Host     string
		Port     int
		User     string
		Password string
		Database string
	}

	// PgIsReadyProbe runs pg_isready inside the database container.
	PgIsReadyProbe struct {
		Engine    container.Engine
		Container container.ContainerName
		User      string
		Database  string
	}

	// TCPProbe dials an address.
	TCPProbe struct {
		Address string
	}

	// ExecProbe runs a command in a container; exit status 0 means ready.
	ExecProbe struct {
		Engine    container.Engine
		Container container.ContainerName
		Command   []string
	}

	// ExitError is returned by exec-based probes for a non-zero exit.
	ExitError struct {
		Command  []string
		ExitCode int
	}
)

func (e *ExitError) Error() string {
	return fmt.Sprintf("%v exited with status %d", e.Command, e.ExitCode)
}

// DSN returns a lib/pq connection URL with TLS disabled.
func (c PostgresConn) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=disable&connect_timeout=5",
	}
	return u.String()
}

// Open opens a database handle for the connection.
func (c PostgresConn) Open() (*sql.DB, error) {
	connector, err := pq.NewConnector(c.DSN())
	if err != nil {
		return nil, fmt.Errorf("invalid postgres connection: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// Check implements Probe.
func (p *PostgresProbe) Check(ctx context.Context) error {
	db, err := p.Conn.Open()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }() // Probe connection; close error non-critical

	return db.PingContext(ctx)
}

func (p *PostgresProbe) String() string {
	return fmt.Sprintf("postgres %s@%s:%d/%s", p.Conn.User, p.Conn.Host, p.Conn.Port, p.Conn.Database)
}

// Command returns the pg_isready invocation. It uses TCP so that the
// temporary socket-only server of the image's init phase does not count as ready.
func (p *PgIsReadyProbe) Command() []string {
	return []string{"pg_isready", "-h", "127.0.0.1", "-U", p.User, "-d", p.Database}
}

// Check implements Probe.
func (p *PgIsReadyProbe) Check(ctx context.Context) error {
	return execCheck(ctx, p.Engine, p.Container, p.Command())
}

func (p *PgIsReadyProbe) String() string {
	return fmt.Sprintf("pg_isready in %s", p.Container)
}

// Check implements Probe.
func (p *TCPProbe) Check(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (p *TCPProbe) String() string {
	return "tcp " + p.Address
}

// Check implements Probe.
func (p *ExecProbe) Check(ctx context.Context) error {
	return execCheck(ctx, p.Engine, p.Container, p.Command)
}

func (p *ExecProbe) String() string {
	return fmt.Sprintf("exec %v in %s", p.Command, p.Container)
}

func execCheck(ctx context.Context, engine container.Engine, name container.ContainerName, command []string) error {
	res, err := engine.Exec(ctx, name, command, container.ExecOptions{})
	if err != nil {
		return err
	}
	if res.Error != nil {
		return res.Error
	}
	if res.ExitCode != 0 {
		return &ExitError{Command: command, ExitCode: res.ExitCode}
	}
	return nil
}

// ForService builds the probe declared by svc. env is the environment the
// service runs with, secrets included; nil means svc.Environment. It returns
// nil when the service has no probe.
func ForService(stack *stackfile.Stack, svc *stackfile.Service, env map[string]string, engine container.Engine) (Probe, error) {
	if !svc.HasProbe() {
		return nil, nil
	}
	r := svc.Readiness
	name := container.ContainerName(stack.ContainerName(svc.Name))

	switch r.Type {
	case stackfile.ReadinessPostgres:
		if env == nil {
			env = svc.Environment
		}
		conn := PostgresConnFor(env)
		port := r.Port
		if port == 0 {
			port = stackfile.PostgresPort
		}
		if hostPort, ok := PublishedPort(svc, port); ok {
			conn.Host, conn.Port = probeHost, hostPort
			return &PostgresProbe{Conn: conn}, nil
		}
		return &PgIsReadyProbe{Engine: engine, Container: name, User: conn.User, Database: conn.Database}, nil

	case stackfile.ReadinessTCP:
		hostPort, ok := PublishedPort(svc, r.Port)
		if !ok {
			return nil, fmt.Errorf("service %s: tcp readiness needs a published port", svc.Name)
		}
		return &TCPProbe{Address: net.JoinHostPort(probeHost, strconv.Itoa(hostPort))}, nil

	case stackfile.ReadinessExec:
		return &ExecProbe{Engine: engine, Container: name, Command: r.Command}, nil

	default:
		return nil, fmt.Errorf("service %s: unknown readiness type %q", svc.Name, r.Type)
	}
}

// PostgresConnFor reads the credentials of a postgres container from the
// environment it runs with. Host and Port are left for the caller.
func PostgresConnFor(env map[string]string) PostgresConn {
	user := env["POSTGRES_USER"]
	if user == "" {
		user = defaultPostgresUser
	}
	db := env["POSTGRES_DB"]
	if db == "" {
		db = user
	}
	return PostgresConn{User: user, Password: env["POSTGRES_PASSWORD"], Database: db}
}

// PublishedPort returns the host port mapped to containerPort over TCP. A zero
// containerPort selects the first TCP mapping.
func PublishedPort(svc *stackfile.Service, containerPort int) (int, bool) {
	for _, p := range svc.Ports {
		m, err := container.ParsePortMapping(p)
		if err != nil || (m.Protocol != "" && m.Protocol != container.PortProtocolTCP) {
			continue
		}
		if containerPort == 0 || int(m.ContainerPort) == containerPort {
			return int(m.HostPort), true
		}
	}
	return 0, false
}

// IsNotReady reports whether err came from a failed readiness wait.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}
