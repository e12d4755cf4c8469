// Package storage persists prediction rows produced by classification runs.
//
// The backing store is SQLite (modernc.org/sqlite, no cgo). Rows carry the
// batch's calendar date and time so the HTTP layer can resolve each row back
// to its archived image directory.
package storage
