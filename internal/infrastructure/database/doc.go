// Package database provides the bridge's SQLite connection.
//
// The database is optional. When enabled it stores the device state
// history served by the HTTP API. Migrations are embedded in the binary by
// the migrations package and applied at startup:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
