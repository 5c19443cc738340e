// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"stackctl/internal/orchestrator"
	"stackctl/internal/readiness"
	"stackctl/pkg/stackfile"
)

// summaryTimeout bounds the database summary query of `status --db`.
const summaryTimeout = 5 * time.Second

func newStatusCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	var withDB bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of every service",
		Long: `Show the state of every service in start order.

With --db, every postgres service with a published port is queried for its
server version and user tables, which shows whether the named volume kept
data from earlier runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cmd.Context(), rootFlags, engineRequired)
			if err != nil {
				return renderFailure(cmd, app.stderr, err, verboseOf(s, rootFlags))
			}

			statuses, err := s.orch.Status(cmd.Context(), s.stack)
			if err != nil {
				return renderFailure(cmd, app.stderr, err, s.verbose)
			}

			fmt.Fprintln(app.stdout, TitleStyle.Render("Stack "+s.stack.ProjectName()))
			fmt.Fprintln(app.stdout, renderStatusTable(statuses))

			if withDB {
				printDatabaseSummaries(cmd.Context(), app.stdout, s.orch, s.stack, statuses)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withDB, "db", false, "add the database version and tables of postgres services")

	return cmd
}

// renderStatusTable renders one row per service, colored by state.
func renderStatusTable(statuses []orchestrator.ServiceStatus) string {
	rows := make([][]string, 0, len(statuses))
	styles := make([]lipgloss.Style, 0, len(statuses))
	for _, st := range statuses {
		state := st.State
		if !st.Running && st.State != orchestrator.StateNotCreated {
			state += " (" + strconv.Itoa(st.ExitCode) + ")"
		}
		health := st.Health
		if health == "" {
			health = "-"
		}
		ports := strings.Join(st.Ports, ", ")
		if ports == "" {
			ports = "-"
		}
		rows = append(rows, []string{st.Service, st.Container, state, health, ports})
		styles = append(styles, stateStyle(st.Running, st.ExitCode, st.State == orchestrator.StateNotCreated))
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtitleStyle).
		Headers("SERVICE", "CONTAINER", "STATE", "HEALTH", "PORTS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case col == 2 && row >= 0 && row < len(styles):
				return styles[row].PaddingRight(2)
			default:
				return tableCellStyle
			}
		}).
		String()
}

// printDatabaseSummaries prints the summary of each running postgres service.
// Query failures are reported inline; status itself still succeeds.
func printDatabaseSummaries(ctx context.Context, w io.Writer, orch *orchestrator.Orchestrator, stack *stackfile.Stack, statuses []orchestrator.ServiceStatus) {
	running := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		running[st.Service] = st.Running
	}

	for _, name := range stack.ServiceNames() {
		svc := stack.Services[name]
		if !isPostgresService(svc) {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", TitleStyle.Render("Database "+name))
		if !running[name] {
			fmt.Fprintln(w, SubtitleStyle.Render("  not running"))
			continue
		}

		port := stackfile.PostgresPort
		if svc.Readiness != nil && svc.Readiness.Port != 0 {
			port = svc.Readiness.Port
		}
		hostPort, ok := readiness.PublishedPort(svc, port)
		if !ok {
			fmt.Fprintf(w, "  %s\n", SubtitleStyle.Render("port "+strconv.Itoa(port)+" is not published"))
			continue
		}

		env, err := orch.ServiceEnv(stack, name)
		if err != nil {
			fmt.Fprintf(w, "  %s %v\n", ErrorStyle.Render("query failed:"), err)
			continue
		}
		conn := readiness.PostgresConnFor(env)
		conn.Host, conn.Port = "localhost", hostPort
		qctx, cancel := context.WithTimeout(ctx, summaryTimeout)
		summary, err := readiness.DatabaseSummary(qctx, conn)
		cancel()
		if err != nil {
			fmt.Fprintf(w, "  %s %v\n", ErrorStyle.Render("query failed:"), err)
			continue
		}

		fmt.Fprintf(w, "  %s %s\n", CmdStyle.Render("version:"), summary.Version)
		if len(summary.Tables) == 0 {
			fmt.Fprintf(w, "  %s %s\n", CmdStyle.Render("tables:"), SubtitleStyle.Render("(none, fresh database)"))
			continue
		}
		fmt.Fprintf(w, "  %s\n", CmdStyle.Render("tables:"))
		for _, t := range summary.Tables {
			fmt.Fprintf(w, "    - %s\n", t)
		}
	}
}

func isPostgresService(svc *stackfile.Service) bool {
	if svc.Readiness != nil && svc.Readiness.Type == stackfile.ReadinessPostgres {
		return true
	}
	return stackfile.IsPostgresImage(svc.Image)
}
