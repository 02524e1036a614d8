// Package services talks to the remote record store over its REST API.
//
// # Raw Access
//
// [APIService] performs unauthenticated-by-itself HTTP calls and returns an [APIResponse]
// with the status, headers and body. The CLI's `api get` command uses it for debugging.
//
// # Record Store
//
// [RecordStore] wraps an APIService whose transport adds the personal access token
// through [oauth2.StaticTokenSource]. Every request waits on a token bucket
// (five requests per second by default) and runs under the configured timeout.
//
// Writes go through [RecordStore.UpdateRecords], which accepts at most
// [MaxRecordsPerRequest] ids. [RecordStore.Dispatcher] adapts it to the batch
// coordinator, which does the chunking and retrying.
//
// Reads decode both record shapes through the records package.
//
// # Error Handling
//
// Non-2xx responses become [*StatusError], which exposes StatusCode() so the batch
// policy can recognize throttling (429). StatusError also matches:
//   - [shared.ErrAPIRequest] : any non-2xx response
//   - [shared.ErrRecordNotFound] : 404
package services
