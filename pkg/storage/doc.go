/*
Package storage persists the scheduler's task records.

Two backends implement Store:

  - BoltStore (default): a single bbolt file, rookery.db, with one "tasks"
    bucket keyed by task ID holding JSON encoded TaskRecords.
  - SQLiteStore: a "tasks" table in rookery.sqlite (modernc.org/sqlite, no cgo),
    indexed by state.

Open picks one from Config.Driver.

FetchActiveTasks is the only call the reconciler makes. It runs inside a single
read transaction (bbolt View, one SELECT for SQLite), so the result is a
consistent snapshot as of the call. Nothing guarantees it is still current by
the time the caller uses it.

Errors wrap ErrTaskNotFound and ErrTaskExists so callers can use errors.Is.
*/
package storage
