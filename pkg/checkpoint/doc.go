// Package checkpoint persists the feed cursor of an in-flight content seed so
// a job re-picked after a crash continues paginating where it stopped instead
// of walking the whole feed again.
//
// Files are written to a temporary name and renamed into place, so a crash
// mid-write leaves the previous cursor intact.
package checkpoint
