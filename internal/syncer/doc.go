// Package syncer implements the per-entity synchronization units: the Puller
// (remote to local), the Pusher (local to remote), the Cleaner (tombstone
// expiry) and the CascadeDeleter (verified hard delete), together with the
// conflict rule they share.
//
// Every unit catches its own failures and reports a Result; no unit returns an
// error to its caller. Remote failures are classified by gRPC status code:
// codes.PermissionDenied is permanent, everything else is retried.
package syncer
