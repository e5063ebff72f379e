// Package export implements the self-resuming license CSV export.
//
// The export runs as a chain of short, bounded batches. Each inbound trigger
// request processes at most one batch and, if the batch came back full,
// fires a detached HTTP call to the same endpoint with an advanced offset.
// A correlation token stored in a TTL session transient ties the chain
// together and rejects requests that do not belong to the active run.
//
// # Components
//
//   - Service: the scheduler. Decides per trigger whether to start a new
//     export, continue the active one, or silently ignore the request.
//   - Driver: executes one batch (header at offset 0, fetch page, project
//     rows, append to the file) and reports the fetched count.
//   - Projector: maps one license bundle to one output row, applying the
//     address, tax-ID and expiration fallback rules.
//   - Source: the record source adapter. Two Postgres-backed shapes exist
//     (modern relational table, legacy meta rows); the shape is probed once
//     at construction and both normalize to the same License struct.
//   - Spawner: issues the detached, fire-and-forget self-call.
//
// # Termination
//
// The driver returns the number of records FETCHED from the source, not the
// number of rows written. A batch whose fetched count is below the requested
// limit is the final batch; no successor is scheduled and the session is
// left to expire on its own.
package export
