package p4k

import (
	"context"

	"github.com/meigma/p4k/compare"
)

// Compare classifies every path of left and right; see compare.Entries.
// The left archive's logger is used unless opts set one.
func Compare(ctx context.Context, left, right *Archive, opts ...compare.Option) (*compare.Directory, error) {
	opts = append([]compare.Option{compare.WithLogger(left.log())}, opts...)
	return compare.Entries(ctx, left.Entries(), right.Entries(), opts...)
}
