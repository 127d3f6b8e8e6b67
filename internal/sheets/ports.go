// Package sheets defines spreadsheet destinations for exported transactions.
package sheets

import "context"

type (
	// RowWriter replaces the content of one sheet with header followed by rows.
	RowWriter interface {
		WriteRows(ctx context.Context, header []string, rows [][]string) (rangeRef string, err error)
	}
)
