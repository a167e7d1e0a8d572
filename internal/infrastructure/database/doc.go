// Package database opens and migrates the SQLite file backing the
// history journal.
//
// The journal is append-mostly: one writer goroutine inserts event
// rows, the API reads them back. The connection is therefore pinned to
// a single open connection with WAL mode, which lets reads proceed
// while the journal writes.
//
// Schema migrations are embedded into the binary. The migrations
// package registers its files here via MigrationsFS at init time, so
// a deployed binary never depends on SQL files on disk.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "vmgrid.db", WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
