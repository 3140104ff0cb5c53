// Package dataset defines the external dataset provider contract used for
// subjects whose target is "system" rather than a subject-owned stored
// table, and a CSV-backed implementation of it.
package dataset

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// Provider serves data and policy documents for a fixed set of named
// targets that are not subject-scoped stored tables.
type Provider interface {
	// GetData returns the record batches for columnName within target.
	GetData(ctx context.Context, target, columnName string) ([]arrow.Record, error)
	// GetPolicy returns the policy document JSON governing columnName
	// within target.
	GetPolicy(ctx context.Context, target, columnName string) (string, error)
}
