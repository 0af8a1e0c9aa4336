// Package services holds shared error classification and context helpers for
// the vendor gateway clients under services/ subpackages.
package services
