package transport

import (
	"context"
	"fmt"
)

// maxPages stops a misbehaving server from paging forever.
const maxPages = 10000

// PageFunc fetches the page starting at cursor. It returns the page values,
// the cursor of the next page and whether this was the last page.
type PageFunc[T any, C comparable] func(ctx context.Context, cursor C) (values []T, next C, last bool, err error)

// Pages collects every page, starting from the zero cursor.
func Pages[T any, C comparable](ctx context.Context, fetch PageFunc[T, C]) ([]T, error) {
	var (
		all    []T
		cursor C
	)
	for i := 0; i < maxPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		values, next, last, err := fetch(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, values...)
		if last {
			return all, nil
		}
		if next == cursor {
			return nil, fmt.Errorf("pagination did not advance past cursor %v", cursor)
		}
		cursor = next
	}
	return nil, fmt.Errorf("pagination exceeded %d pages", maxPages)
}
