// Package schedule implements the recurring-trigger engine.
//
// A small declarative rule set (task name -> daily/weekly/yearly minute
// rules) is re-read from its source on every poll, so an external update
// takes effect on the next poll without a restart. Matching granularity is
// exactly one minute; a per-task cursor keeps repeated polls inside the same
// matching minute from re-firing the task.
package schedule
