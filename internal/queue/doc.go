// Package queue persists proxy encode jobs in SQLite or PostgreSQL and
// exposes the transitions workers and the queue command drive them through.
//
// The Store owns connections, schema initialization, claims, heartbeat
// tracking, stale-job recovery, chunk stitch elections and the worker
// registry. A single SQLite file serves one host or a shared disk; the
// PostgreSQL dialect lets workers on several machines claim from the same
// table with FOR UPDATE SKIP LOCKED.
//
// The database is treated as transient storage for in-flight batches rather
// than a long-term archive. Schema changes bump the version in schema.go;
// users delete the database to adopt the new schema.
//
// Queue names partition workers by build: a job is only claimed by workers
// advertising the same queue name.
package queue
