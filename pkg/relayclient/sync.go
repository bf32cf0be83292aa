package relayclient

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// syncPageSize matches the largest page the API serves
const syncPageSize = 100

// Sync fetches every page of the user's requests and notifications, then the
// full history of every accepted conversation, and merges them into state
func Sync(ctx context.Context, rest *REST, state *State) error {
	var snap Snapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		conns, err := allPages(gctx, func(ctx context.Context, limit, offset int) ([]Connection, error) {
			return rest.Connections(ctx, "all", "", limit, offset)
		})
		snap.Connections = conns
		return err
	})
	g.Go(func() error {
		notifs, err := allPages(gctx, func(ctx context.Context, limit, offset int) ([]Notification, error) {
			return rest.Notifications(ctx, false, limit, offset)
		})
		snap.Notifications = notifs
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	state.ApplySnapshot(snap)

	var mu sync.Mutex
	var msgs []Message
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range state.Conversations() {
		g.Go(func() error {
			history, err := allPages(gctx, func(ctx context.Context, limit, offset int) ([]Message, error) {
				return rest.Messages(ctx, id, limit, offset)
			})
			if err != nil {
				return err
			}
			mu.Lock()
			msgs = append(msgs, history...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	state.ApplySnapshot(Snapshot{Messages: msgs})
	return nil
}

// allPages keeps fetching until a page comes back short
func allPages[T any](ctx context.Context, fetch func(ctx context.Context, limit, offset int) ([]T, error)) ([]T, error) {
	var all []T
	for offset := 0; ; offset += syncPageSize {
		page, err := fetch(ctx, syncPageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < syncPageSize {
			return all, nil
		}
	}
}

// Syncer returns an OnConnect hook running Sync
func Syncer(rest *REST, state *State) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return Sync(ctx, rest, state)
	}
}
