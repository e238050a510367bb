package wiki

import (
	"context"
	"math"
	"net/url"
)

// fetchAll drives a continuation-based list query to completion. It issues
// the templated request repeatedly, feeding back the server's continuation
// token under contParam, until the server omits the token or the accumulator
// reaches want items. A want of zero means unbounded; negative is a
// validation error. Items keep server emission order; when want falls
// mid-page the full page is still fetched and truncated client-side, because
// partial pages cannot be requested.
func fetchAll[T any](ctx context.Context, c *Client, params url.Values, contParam, caller string, want int, decode func(body string) ([]T, error)) ([]T, error) {
	if want < 0 {
		return nil, &ValidationError{Field: "limit", Message: "target quantity cannot be negative"}
	}
	target := want
	if target == 0 {
		target = math.MaxInt
	}

	var items []T
	cont := ""
	for {
		p := cloneValues(params)
		if cont != "" {
			p.Set(contParam, cont)
		}
		body, err := c.get(ctx, p, caller, scopeNone)
		if err != nil {
			return nil, err
		}
		if err := checkError(body); err != nil {
			return nil, err
		}
		page, err := decode(body)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)

		cont = continuationToken(body, contParam)
		if cont == "" || len(items) >= target {
			break
		}
	}

	if len(items) > target {
		items = items[:target]
	}
	return items, nil
}
