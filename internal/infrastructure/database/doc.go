// Package database provides the SQLite store behind the orgbd session audit
// trail.
//
// This package manages:
//   - Connection setup with optional WAL mode
//   - Schema migrations read from an fs.FS (see the migrations package)
//   - Lifecycle and health checks for the ops API
//
// The ORGB protocol path never touches the database; only the audit sink and
// the ops API do.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/orgbd.db", WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql, and are applied in version order, one transaction each.
package database
