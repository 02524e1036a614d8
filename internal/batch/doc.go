// package batch writes one field patch to many records through a remote API
// that accepts a bounded number of records per request and throttles callers.
//
// A [Coordinator] splits the ids into chunks with [Chunk], dispatches each chunk
// through a caller-supplied [Dispatcher] and retries rate-limited chunks on the
// schedule of its [Policy]. Failures are reported per chunk in a [BulkResult];
// one chunk giving up never cancels its siblings.
//
// Chunks run serially unless a fan-out above one is configured. Cancelling the
// context stops new dispatches and retries; calls already in flight complete and
// the ids of chunks never dispatched are reported as not attempted.
package batch
