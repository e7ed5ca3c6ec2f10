package probe

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

const selectEnabledProbes = `
		SELECT name, description, metadata_filters, payload_filters, actions, extra
		FROM probes
		WHERE enabled = TRUE
		ORDER BY created_at ASC, name ASC
	`

// PostgresSource reads probes from the probes table. Filter, action and extra
// columns hold JSON documents.
type PostgresSource struct {
	conn *sql.DB
}

// OpenPostgres connects to PostgreSQL using dsn.
func OpenPostgres(dsn string) (*PostgresSource, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to PostgreSQL probe store")
	return &PostgresSource{conn: conn}, nil
}

// NewPostgresSource wraps an existing connection.
func NewPostgresSource(conn *sql.DB) *PostgresSource {
	return &PostgresSource{conn: conn}
}

// Load queries all enabled probes, oldest first.
func (s *PostgresSource) Load(ctx context.Context) (*Set, error) {
	rows, err := s.conn.QueryContext(ctx, selectEnabledProbes)
	if err != nil {
		return nil, fmt.Errorf("failed to query probes: %w", err)
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		var (
			def                                    Definition
			description                            sql.NullString
			metadataJSON, payloadJSON, actionsJSON []byte
			extraJSON                              []byte
		)
		if err := rows.Scan(&def.Name, &description, &metadataJSON, &payloadJSON, &actionsJSON, &extraJSON); err != nil {
			return nil, fmt.Errorf("failed to scan probe: %w", err)
		}
		def.Description = description.String
		if err := unmarshalColumn(metadataJSON, &def.MetadataFilters); err != nil {
			return nil, fmt.Errorf("probe %s: metadata_filters: %w", def.Name, err)
		}
		if err := unmarshalColumn(payloadJSON, &def.PayloadFilters); err != nil {
			return nil, fmt.Errorf("probe %s: payload_filters: %w", def.Name, err)
		}
		if err := unmarshalColumn(actionsJSON, &def.Actions); err != nil {
			return nil, fmt.Errorf("probe %s: actions: %w", def.Name, err)
		}
		if err := unmarshalColumn(extraJSON, &def.Extra); err != nil {
			return nil, fmt.Errorf("probe %s: extra: %w", def.Name, err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate probes: %w", err)
	}
	return CompileSet(defs)
}

// Close closes the database connection.
func (s *PostgresSource) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func unmarshalColumn(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
