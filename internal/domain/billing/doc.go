// Package billing contains the domain model for usage metering and the
// monthly billing ledger.
//
// Every metered operation produces deltas into a request-scoped Accumulator,
// which a post-response flush applies to the organization's LedgerEntry for
// the current Period. Entries accumulate per-field values with costs
// snapshotted at the configured rate; a platform-wide UsageAggregate records
// the same totals across all organizations and backs retroactive proportional
// allocation when a month was never billed.
package billing
