package summary

import (
	"context"
	"encoding/json"
	"sync"

	"courtcast/internal/fetch"
)

// fakeFetcher serves canned items per kind and records every query.
type fakeFetcher struct {
	mu    sync.Mutex
	items map[fetch.Kind][]json.RawMessage
	err   error
	calls []fetch.Query
}

func (f *fakeFetcher) Fetch(_ context.Context, q fetch.Query) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.items[q.Kind], nil
}

func newFake() *fakeFetcher {
	return &fakeFetcher{items: map[fetch.Kind][]json.RawMessage{}}
}

func rawItems(vs ...any) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(vs))
	for _, v := range vs {
		b, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		out = append(out, b)
	}
	return out
}
