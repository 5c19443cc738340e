// SPDX-License-Identifier: MPL-2.0

package readiness

import (
	"context"
	"fmt"
)

const (
	versionQuery = `SELECT version()`
	tablesQuery  = `
SELECT table_schema, table_name
FROM information_schema.tables
WHERE table_type = 'BASE TABLE'
  AND table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY table_schema, table_name`
)

// Summary describes the contents of a database.
type Summary struct {
	Version string
	// Tables lists user tables as schema.name.
	Tables []string
}

// DatabaseSummary connects to conn and reports the server version and the
// user tables. A fresh volume shows no tables; a preserved one keeps them.
func DatabaseSummary(ctx context.Context, conn PostgresConn) (*Summary, error) {
	db, err := conn.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }() // Read-only session; close error non-critical

	summary := &Summary{}
	if err := db.QueryRowContext(ctx, versionQuery).Scan(&summary.Version); err != nil {
		return nil, fmt.Errorf("query server version: %w", err)
	}

	rows, err := db.QueryContext(ctx, tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		summary.Tables = append(summary.Tables, schema+"."+name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return summary, nil
}
