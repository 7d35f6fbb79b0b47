package bunq

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/theirongolddev/bunqday/internal/logging"
)

// Decision tells Paginate what to do after a page.
type Decision int

const (
	// Stop ends pagination and returns what was accumulated.
	Stop Decision = iota
	// ContinueOlder follows the page's older_url cursor.
	ContinueOlder
	// ContinueNewer follows the page's newer_url cursor.
	ContinueNewer
)

func (d Decision) String() string {
	switch d {
	case ContinueOlder:
		return "older"
	case ContinueNewer:
		return "newer"
	default:
		return "stop"
	}
}

// Page is one listing page, items in server order.
type Page[T any] struct {
	Number     int // 1-based
	Items      []T
	Pagination Pagination
}

// FetchFunc retrieves the page at target (a path or cursor URL).
type FetchFunc[T any] func(ctx context.Context, target string) (Page[T], error)

// DecideFunc inspects a page and chooses whether to keep paging.
type DecideFunc[T any] func(Page[T]) Decision

// Paginate walks a cursor listing starting at first. After each page the
// items are appended in server order and decide is consulted; paging
// continues only if it asks to and the matching cursor exists. maxPages > 0
// caps the number of requests in case the predicate or the server never
// terminate. A fetch error on any page discards everything accumulated.
func Paginate[T any](ctx context.Context, first string, fetch FetchFunc[T], decide DecideFunc[T], maxPages int) ([]T, error) {
	var all []T
	target := first

	for n := 1; ; n++ {
		page, err := fetch(ctx, target)
		if err != nil {
			return nil, err
		}
		page.Number = n
		all = append(all, page.Items...)

		switch decide(page) {
		case ContinueOlder:
			target = page.Pagination.OlderURL
		case ContinueNewer:
			target = page.Pagination.NewerURL
		default:
			target = ""
		}
		if target == "" {
			return all, nil
		}

		if maxPages > 0 && n >= maxPages {
			logging.Warnf("pagination stopped at the %d page limit", maxPages)
			return all, nil
		}
	}
}

// pageFetcher adapts the client into a FetchFunc that decodes each element
// with decode, skipping elements it does not recognize.
func pageFetcher[T any](c *Client, token string, decode func(json.RawMessage) (T, bool, error)) FetchFunc[T] {
	return func(ctx context.Context, target string) (Page[T], error) {
		res, err := c.do(ctx, http.MethodGet, target, token, nil)
		if err != nil {
			return Page[T]{}, err
		}

		page := Page[T]{Items: make([]T, 0, len(res.Items))}
		if res.Pagination != nil {
			page.Pagination = *res.Pagination
		}
		for _, raw := range res.Items {
			item, ok, err := decode(raw)
			if err != nil {
				return Page[T]{}, err
			}
			if ok {
				page.Items = append(page.Items, item)
			}
		}
		return page, nil
	}
}
