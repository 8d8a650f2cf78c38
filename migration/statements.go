package migration

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cleitonmarx/initgate/initializer"
)

// Statements returns an initializer executing stmts in one transaction.
func Statements(db *sql.DB, stmts ...string) initializer.Action {
	return func(ctx context.Context, ec initializer.ExecutionContext) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		for i, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}
		loggerOf(ec).WithField("statements", len(stmts)).Info("statements executed")
		return nil
	}
}

// PostgresStatements opens the postgres database at dsn for each run and executes
// stmts in one transaction.
func PostgresStatements(dsn string, stmts ...string) initializer.Action {
	return func(ctx context.Context, ec initializer.ExecutionContext) error {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		return Statements(db, stmts...)(ctx, ec)
	}
}
