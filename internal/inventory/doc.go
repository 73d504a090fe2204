// Package inventory persists device identity metadata in SQLite.
//
// The inventory answers "what devices has this gateway ever reported",
// including devices currently offline. It stores identity only (ID,
// name, category, manufacturer, model, firmware, first/last seen); it
// is not a state history, and nothing is replayed into snapshots on
// restart.
//
// # Components
//
//   - Repository / SQLiteRepository: the devices table access layer.
//   - Recorder: subscribes to the poll manager and upserts every device
//     after each successful cycle.
//
// # Usage
//
//	repo := inventory.NewSQLiteRepository(db.DB)
//	rec, err := inventory.NewRecorder(repo, manager)
//	if err != nil {
//	    return err
//	}
//	if err := rec.Start(); err != nil {
//	    return err
//	}
//	defer rec.Stop()
//
// The schema lives in the migrations package (devices table).
package inventory
