// Package store persists jobs and their clip tasks to SQLite. A row update
// after every step transition is one half of a checkpoint; the other half is
// the artifact files under the job workspace, whose presence drives resume.
package store
