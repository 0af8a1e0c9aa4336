// Package workspace lays out the write-once artifact directory for each job.
// Artifact presence is the resume signal the pipeline checks before running a
// step, which keeps restarts idempotent without a separate checkpoint table.
package workspace
