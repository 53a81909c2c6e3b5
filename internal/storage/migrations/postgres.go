package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"go.uber.org/zap"

	"github.com/ArielSltty/Orion/internal/storage/postgres"
)

// RunPostgresMigrations applies all embedded SQL files in lexical order.
// Files are idempotent (IF NOT EXISTS) and may be re-applied on every start.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	files, err := sqlFiles(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	for _, file := range files {
		data, err := fs.ReadFile(PostgresFS, "postgres/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		// pgx runs multi-statement text through the simple protocol.
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		logger.Info("applied migration", zap.String("database", "postgres"), zap.String("file", file))
	}

	return nil
}
