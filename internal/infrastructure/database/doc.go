// Package database provides SQLite connectivity for the DREAMS control core.
//
// It owns the connection settings (WAL, busy timeout, foreign keys), a
// health check, and the migration runner. The schema itself lives in the
// top-level migrations package, which embeds its SQL files and registers
// them here at init.
//
// The database file holds gateway site tokens and is created 0600.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive-only: files named YYYYMMDD_HHMMSS_name.up.sql are
// applied in version order, each in its own transaction. Down files are
// ignored.
package database
