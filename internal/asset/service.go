package asset

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"assetrelay/internal/platform/roblox"

	"golang.org/x/sync/singleflight"
)

// Service serves asset bundles, refreshing them from upstream when stale.
type Service struct {
	store    Store
	upstream Upstream
	cfg      Config
	group    singleflight.Group
	now      func() time.Time
}

// NewService creates a new asset service.
func NewService(store Store, upstream Upstream, cfg Config) *Service {
	return &Service{
		store:    store,
		upstream: upstream,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// Assets returns the serialized bundle for q. A fresh stored bundle is
// returned byte for byte; otherwise one is built from upstream and stored.
func (s *Service) Assets(ctx context.Context, q Query) (json.RawMessage, error) {
	entry, found, err := s.store.Get(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheRead, err)
	}
	if found && s.now().Sub(entry.ModTime) < s.cfg.FreshFor {
		if !json.Valid(entry.Data) {
			return nil, fmt.Errorf("%w: stored bundle for %s is not valid JSON", ErrCacheRead, q.UserID)
		}
		return entry.Data, nil
	}

	// Keyed like the store: concurrent misses for one user share a refresh
	// whatever username they sent. Waiters must not fail because the first
	// caller went away.
	detached := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(q.UserID, func() (interface{}, error) {
		return s.refresh(detached, q)
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// Ping reports whether the underlying store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Service) refresh(ctx context.Context, q Query) (json.RawMessage, error) {
	shirts, err := s.fetchShirts(ctx, q.Username)
	if err != nil {
		return nil, err
	}
	passes, err := s.fetchPasses(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	bundle := Bundle{
		TShirts:    shirts,
		GamePasses: passes,
		Updated:    s.now().UTC(),
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	if err := s.store.Put(ctx, q.UserID, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	return data, nil
}

func (s *Service) fetchShirts(ctx context.Context, username string) ([]json.RawMessage, error) {
	res, err := s.upstream.SearchShirts(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("search shirts: %w", err)
	}
	if res == nil || res.Items == nil {
		return []json.RawMessage{}, nil
	}
	return res.Items, nil
}

func (s *Service) fetchPasses(ctx context.Context, userID string) ([]GamePass, error) {
	passes := []GamePass{}
	seen := make(map[int64]bool)

	for page := 1; ; page++ {
		if page > s.cfg.MaxPages {
			return nil, fmt.Errorf("%w: user %s has more than %d pages", ErrPageLimit, userID, s.cfg.MaxPages)
		}

		res, err := s.upstream.ListInventory(ctx, userID, page, s.cfg.PassesPerPage)
		if err != nil {
			if roblox.IsNotFound(err) {
				break
			}
			return nil, fmt.Errorf("list inventory page %d: %w", page, err)
		}
		if res == nil || len(res.Items) == 0 {
			break
		}

		for _, item := range res.Items {
			id, ok := item.ID()
			if !ok || seen[id] {
				continue
			}
			if s.cfg.FilterPassCreator && !createdBy(item, userID) {
				continue
			}
			seen[id] = true
			passes = append(passes, GamePass{ID: id, Price: item.Price()})
		}
	}
	return passes, nil
}

func createdBy(item roblox.InventoryItem, userID string) bool {
	creator, ok := item.CreatorID()
	return ok && strconv.FormatInt(creator, 10) == userID
}
