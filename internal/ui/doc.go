// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a workflow over bulk update history:
//  1. [JobListView] : Browse recent sync jobs
//  2. [JobDetailView] : Inspect failed and not-attempted records of one job
//  3. [ConfirmView] : Confirm a retry of the pending records
//  4. [ProgressView] : Monitor chunk progress with a progress bar and spinner
//  5. [ResultView] : Display the outcome summary and failed records
//
// [NewUpdateModel] starts directly in [ProgressView] for a single update issued from the CLI.
//
// Progress updates flow through a channel from the RecordEngine; the (view) [Model]
// receives them via the Msg union type. [Summary] renders the same styled outcome
// for non-interactive output.
package ui
