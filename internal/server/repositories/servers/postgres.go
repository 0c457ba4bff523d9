package servers

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/usenetsync/internal/dbx"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// PostgresRepository implements server storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts or refreshes a server row by server_id. On conflict the
// enabled flag keeps its stored value, so operator enable/disable survives
// config re-syncs.
func (r *PostgresRepository) Upsert(ctx context.Context, s *models.ServerDescriptor) error {
	query := `
		INSERT INTO servers (server_id, host, port, tls, username, password, max_connections, priority, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (server_id)
		DO UPDATE SET
			host = EXCLUDED.host,
			port = EXCLUDED.port,
			tls = EXCLUDED.tls,
			username = EXCLUDED.username,
			password = EXCLUDED.password,
			max_connections = EXCLUDED.max_connections,
			priority = EXCLUDED.priority
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ServerID, s.Host, s.Port, s.TLS, s.Username, s.Password,
		s.MaxConnections, s.Priority, s.Enabled)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// List returns all servers ordered by selection priority.
func (r *PostgresRepository) List(ctx context.Context) ([]*models.ServerDescriptor, error) {
	query := `SELECT server_id, host, port, tls, username, password, max_connections, priority, enabled
		FROM servers ORDER BY priority`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select servers: %w", err)
	}
	defer rows.Close()

	var result []*models.ServerDescriptor
	for rows.Next() {
		var item models.ServerDescriptor
		if err := rows.Scan(&item.ServerID, &item.Host, &item.Port, &item.TLS,
			&item.Username, &item.Password, &item.MaxConnections, &item.Priority, &item.Enabled); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SetEnabled flips the enabled flag for one server. Exactly one row must
// be affected.
func (r *PostgresRepository) SetEnabled(ctx context.Context, serverID string, enabled bool) error {
	query := `UPDATE servers SET enabled=$2 WHERE server_id=$1`
	res, err := r.db.ExecContext(ctx, query, serverID, enabled)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}
