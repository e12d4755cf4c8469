// Package vault implements the temporal image store.
//
// A batch of staged images is archived under a directory named after the
// moment of archival (YYYY-MM-DD_HH-MM-SS). The package covers:
//   - allocation of timestamp-named directories and migration of staged files
//   - approximate-match retrieval by target date/time
//   - calendar-period filtering of the directory index
//   - retention sweeping of aged-out directories
//
// Directories whose names do not parse under the naming convention are
// skipped by every consumer; they never fail an operation.
package vault
