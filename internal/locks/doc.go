// Package locks provides lease-based advisory locks stored in the shared
// SQLite database. Per-object locks serialize the pipeline stages for one
// object, the workflow lock serializes enqueue and freeze against each
// other, and the sync group locks make the catalog sync jobs mutually
// exclusive. Leases expire rather than outlive crashed holders.
package locks
