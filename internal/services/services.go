// package services defines the API clients the session core talks through
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/desertthunder/ems/internal/shared"
)

// Fetcher issues API requests. [*AuthorizedClient] is the implementation every
// authenticated caller should use; [*APIService] satisfies it for unauthenticated calls.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*APIResponse, error)
}

// Fetch lets [*APIService] act as a [Fetcher] without refresh handling.
func (a *APIService) Fetch(ctx context.Context, req *Request) (*APIResponse, error) {
	return a.Do(ctx, req)
}

// DecodeList reads a collection from either a bare array or {"data":[...]}.
func DecodeList[T any](resp *APIResponse) ([]T, error) {
	var items []T
	if err := json.Unmarshal(resp.Body, &items); err == nil {
		return items, nil
	}

	var envelope struct {
		Data []T `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: failed to decode list: %v", shared.ErrAPIRequest, err)
	}
	return envelope.Data, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
