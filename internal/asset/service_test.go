package asset

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"assetrelay/internal/platform/roblox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUpstream struct {
	mock.Mock
}

func (m *mockUpstream) SearchShirts(ctx context.Context, creatorName string) (*roblox.CatalogSearchResponse, error) {
	args := m.Called(ctx, creatorName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*roblox.CatalogSearchResponse), args.Error(1)
}

func (m *mockUpstream) ListInventory(ctx context.Context, userID string, page, perPage int) (*roblox.InventoryPage, error) {
	args := m.Called(ctx, userID, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*roblox.InventoryPage), args.Error(1)
}

type fakeStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	puts    int
	getErr  error
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]Entry)}
}

func (f *fakeStore) Get(_ context.Context, key string) (Entry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return Entry{}, false, f.getErr
	}
	e, ok := f.entries[key]
	return e, ok, nil
}

func (f *fakeStore) Put(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.puts++
	f.entries[key] = Entry{Data: data, ModTime: time.Now()}
	return nil
}

func pass(id, price, creator int64) roblox.InventoryItem {
	return roblox.InventoryItem{
		Item:    &roblox.AssetRef{AssetID: &id},
		Product: &roblox.ProductRef{PriceInRobux: &price},
		Creator: &roblox.CreatorRef{ID: &creator},
	}
}

func inventoryPage(items ...roblox.InventoryItem) *roblox.InventoryPage {
	return &roblox.InventoryPage{Items: items}
}

func shirts(raw ...string) *roblox.CatalogSearchResponse {
	res := &roblox.CatalogSearchResponse{Items: []json.RawMessage{}}
	for _, r := range raw {
		res.Items = append(res.Items, json.RawMessage(r))
	}
	return res
}

var fixedNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store Store, up Upstream, cfg Config) *Service {
	svc := NewService(store, up, cfg)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func decodeBundle(t *testing.T, data []byte) Bundle {
	t.Helper()
	var b Bundle
	require.NoError(t, json.Unmarshal(data, &b))
	return b
}

func TestService_Assets_FreshCacheHit(t *testing.T) {
	store := newFakeStore()
	cached := `{"tshirts":[],"gamepasses":[{"id":5,"price":10}],"updated":"2024-01-01T00:00:00Z"}`
	store.entries["111"] = Entry{Data: []byte(cached), ModTime: fixedNow.Add(-60 * time.Second)}
	up := new(mockUpstream)

	svc := newTestService(store, up, Config{})
	got, err := svc.Assets(context.Background(), Query{Username: "builder", UserID: "111"})

	require.NoError(t, err)
	assert.Equal(t, cached, string(got))
	up.AssertNotCalled(t, "SearchShirts", mock.Anything, mock.Anything)
	up.AssertNotCalled(t, "ListInventory", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, store.puts)
}

func TestService_Assets_StaleCacheRefetches(t *testing.T) {
	store := newFakeStore()
	store.entries["111"] = Entry{Data: []byte(`{"tshirts":[],"gamepasses":[],"updated":"2023-01-01T00:00:00Z"}`), ModTime: fixedNow.Add(-600 * time.Second)}

	up := new(mockUpstream)
	up.On("SearchShirts", mock.Anything, "builder").Return(shirts(`{"id":1}`), nil).Once()
	up.On("ListInventory", mock.Anything, "111", 1, 100).Return(inventoryPage(pass(5, 10, 111)), nil).Once()
	up.On("ListInventory", mock.Anything, "111", 2, 100).Return(inventoryPage(), nil).Once()

	svc := newTestService(store, up, Config{})
	got, err := svc.Assets(context.Background(), Query{Username: "builder", UserID: "111"})

	require.NoError(t, err)
	b := decodeBundle(t, got)
	require.Len(t, b.TShirts, 1)
	assert.JSONEq(t, `{"id":1}`, string(b.TShirts[0]))
	assert.Equal(t, []GamePass{{ID: 5, Price: 10}}, b.GamePasses)
	assert.True(t, b.Updated.Equal(fixedNow))
	assert.Equal(t, 1, store.puts)
	assert.Equal(t, string(got), string(store.entries["111"].Data))
	up.AssertExpectations(t)
}

func TestService_Assets_PaginatesUntilEmptyPage(t *testing.T) {
	var full []roblox.InventoryItem
	for i := int64(1); i <= 100; i++ {
		full = append(full, pass(i, i*2, 111))
	}
	// duplicates within the page collapse
	full[99] = pass(1, 999, 111)

	up := new(mockUpstream)
	up.On("SearchShirts", mock.Anything, "builder").Return(shirts(), nil).Once()
	up.On("ListInventory", mock.Anything, "111", 1, 100).Return(inventoryPage(full...), nil).Once()
	up.On("ListInventory", mock.Anything, "111", 2, 100).Return(inventoryPage(), nil).Once()

	svc := newTestService(newFakeStore(), up, Config{})
	got, err := svc.Assets(context.Background(), Query{Username: "builder", UserID: "111"})

	require.NoError(t, err)
	b := decodeBundle(t, got)
	assert.Len(t, b.GamePasses, 99)
	assert.Equal(t, GamePass{ID: 1, Price: 2}, b.GamePasses[0])
	assert.NotNil(t, b.TShirts)
	up.AssertNumberOfCalls(t, "ListInventory", 2)
}

func TestService_Assets_DeduplicatesAcrossPages(t *testing.T) {
	up := new(mockUpstream)
	up.On("SearchShirts", mock.Anything, "builder").Return(shirts(), nil)
	up.On("ListInventory", mock.Anything, "111", 1, 100).Return(inventoryPage(pass(1, 5, 111), pass(2, 6, 111)), nil)
	up.On("ListInventory", mock.Anything, "111", 2, 100).Return(inventoryPage(pass(2, 6, 111), pass(3, 7, 111)), nil)
	up.On("ListInventory", mock.Anything, "111", 3, 100).Return(inventoryPage(), nil)

	svc := newTestService(newFakeStore(), up, Config{})
	got, err := svc.Assets(context.Background(), Query{Username: "builder", UserID: "111"})

	require.NoError(t, err)
	assert.Equal(t, []GamePass{{1, 5}, {2, 6}, {3, 7}}, decodeBundle(t, got).GamePasses)
}

func TestService_Assets_SkipsItemsWithoutIDAndDefaultsPrice(t *testing.T) {
	id := int64(9)
	up := new(mockUpstream)
	up.On("SearchShirts", mock.Anything, "builder").Return(shirts(), nil)
	up.On("ListInventory", mock.Anything, "111", 1, 100).Return(inventoryPage(
		roblox.InventoryItem{},
		roblox.InventoryItem{Item: &roblox.AssetRef{}},
		roblox.InventoryItem{Item: &roblox.AssetRef{AssetID: &id}},
	), nil)
	up.On("ListInventory", mock.Anything, "111", 2, 100).Return(inventoryPage(), nil)

	svc := newTestService(newFakeStore(), up, Config{})
	got, err := svc.Assets(context.Background(), Query{Username: "builder", UserID: "111"})

	require.NoError(t, err)
	assert.Equal(t, []GamePass{{ID: 9, Price: 0}}, decodeBundle(t, got).GamePasses)
}

func TestService_Assets_NotFoundEndsPagination(t *testing.T) {
	notFound := &roblox.StatusError{StatusCode: http.StatusNotFound, URL: "inventory"}

	run := func(t *testing.T, page2Result *roblox.InventoryPage, page2Err error) Bundle {
		up := new(mockUpstream)
		up.On("SearchShirts", mock.Anything, "builder").Return(shirts(`{"id":1}`), nil)
		up.On("ListInventory", mock.Anything, "111", 1, 100).Return(inventoryPage(pass(5, 10, 111)), nil)
		if page2Result != nil {
			up.On("ListInventory", mock.Anything, "111", 2, 100).Return(page2Result, nil)
		} else {
			up.On("ListInventory", mock.Anything, "111", 2, 100).Return(nil, page2Err)
		}

		svc := newTestService(newFakeStore(), up, Config{})
		got, err := svc.Assets(context.Background(), Query{Username: "builder", UserID: "111"})
		require.NoError(t, err)
		up.AssertNumberOfCalls(t, "ListInventory", 2)
		return decodeBundle(t, got)
	}

	assert.Equal(t, run(t, inventoryPage(), nil), run(t, nil, notFound))
}

func TestService_Assets_NotFoundOnFirstPage(t *testing.T) {
	up := new(mockUpstream)
	up.On("SearchShirts", mock.Anything, "builder").Return(shirts(), nil)
	up.On("ListInventory", mock.Anything, "111", 1, 100).Return(nil, &roblox.StatusError{StatusCode: http.StatusNotFound})

	svc := newTestService(newFakeStore(), up, Config{})
	got, err := svc.Assets(context.Background(), Query{Username: "builder", UserID: "111"})

	require.NoError(t, err)
	assert.Empty(t, decodeBundle(t, got).GamePasses)
}

func TestService_Assets_UpstreamFailureStoresNothing(t *testing.T) {
	t.Run("catalog", func(t *testing.T) {
		store := newFakeStore()
		up := new(mockUpstream)
		up.On("SearchShirts", mock.Anything, "builder").Return(nil, errors.New("connection refused"))

		svc := newTestService(store, up, Config{})
		_, err := svc.Assets(context.Background(), Query{Username: "builder", UserID: "111"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, "upstream_failed", Kind(err))
		assert.Equal(t, 0, store.puts)
		up.AssertNotCalled(t, "ListInventory", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("inventory", func(t *testing.T) {
		store := newFakeStore()
		upstreamErr := &roblox.StatusError{StatusCode: http.StatusBadGateway, Body: []byte(`{"errors":[]}`)}
		up := new(mockUpstream)
		up.On("SearchShirts", mock.Anything, "builder").Return(shirts(), nil)
		up.On("ListInventory", mock.Anything, "111", 1, 100).Return(inventoryPage(pass(1, 1, 111)), nil)
		up.On("ListInventory", mock.Anything, "111", 2, 100).Return(nil, upstreamErr)

		svc := newTestService(store, up, Config{})
		_, err := svc.Assets(context.Background(), Query{Username: "builder", UserID: "111"})

		var se *roblox.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadGateway, se.StatusCode)
		assert.Equal(t, 0, store.puts)
	})
}

func TestService_Assets_PageLimit(t *testing.T) {
	store := newFakeStore()
	up := new(mockUpstream)
	up.On("SearchShirts", mock.Anything, "builder").Return(shirts(), nil)
	up.On("ListInventory", mock.Anything, "111", mock.Anything, 100).Return(inventoryPage(pass(1, 1, 111)), nil)

	svc := newTestService(store, up, Config{MaxPages: 3})
	_, err := svc.Assets(context.Background(), Query{Username: "builder", UserID: "111"})

	require.ErrorIs(t, err, ErrPageLimit)
	assert.Equal(t, "page_limit_reached", Kind(err))
	up.AssertNumberOfCalls(t, "ListInventory", 3)
	assert.Equal(t, 0, store.puts)
}

func TestService_Assets_CreatorFilter(t *testing.T) {
	items := inventoryPage(pass(1, 10, 111), pass(2, 20, 222), roblox.InventoryItem{Item: pass(3, 0, 0).Item})

	for _, tt := range []struct {
		name   string
		filter bool
		want   []GamePass
	}{
		{"off", false, []GamePass{{1, 10}, {2, 20}, {3, 0}}},
		{"on", true, []GamePass{{1, 10}}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			up := new(mockUpstream)
			up.On("SearchShirts", mock.Anything, "builder").Return(shirts(), nil)
			up.On("ListInventory", mock.Anything, "111", 1, 100).Return(items, nil)
			up.On("ListInventory", mock.Anything, "111", 2, 100).Return(inventoryPage(), nil)

			svc := newTestService(newFakeStore(), up, Config{FilterPassCreator: tt.filter})
			got, err := svc.Assets(context.Background(), Query{Username: "builder", UserID: "111"})

			require.NoError(t, err)
			assert.Equal(t, tt.want, decodeBundle(t, got).GamePasses)
		})
	}
}

func TestService_Assets_CacheFailures(t *testing.T) {
	t.Run("read error", func(t *testing.T) {
		store := newFakeStore()
		store.getErr = errors.New("disk gone")
		up := new(mockUpstream)

		_, err := newTestService(store, up, Config{}).Assets(context.Background(), Query{Username: "b", UserID: "1"})

		require.ErrorIs(t, err, ErrCacheRead)
		assert.Equal(t, "cache_read_failed", Kind(err))
		up.AssertNotCalled(t, "SearchShirts", mock.Anything, mock.Anything)
	})

	t.Run("corrupt entry", func(t *testing.T) {
		store := newFakeStore()
		store.entries["1"] = Entry{Data: []byte(`{"tshirts":`), ModTime: fixedNow}

		_, err := newTestService(store, new(mockUpstream), Config{}).Assets(context.Background(), Query{Username: "b", UserID: "1"})

		require.ErrorIs(t, err, ErrCacheRead)
	})

	t.Run("write error", func(t *testing.T) {
		store := newFakeStore()
		store.putErr = errors.New("read-only file system")
		up := new(mockUpstream)
		up.On("SearchShirts", mock.Anything, "b").Return(shirts(), nil)
		up.On("ListInventory", mock.Anything, "1", 1, 100).Return(inventoryPage(), nil)

		_, err := newTestService(store, up, Config{}).Assets(context.Background(), Query{Username: "b", UserID: "1"})

		require.ErrorIs(t, err, ErrCacheWrite)
		assert.Equal(t, "cache_write_failed", Kind(err))
	})
}

// blockingUpstream holds the catalog call until release is closed.
type blockingUpstream struct {
	release chan struct{}
	shirts  atomic.Int32
	pages   atomic.Int32
}

func (b *blockingUpstream) SearchShirts(ctx context.Context, _ string) (*roblox.CatalogSearchResponse, error) {
	b.shirts.Add(1)
	<-b.release
	return shirts(), nil
}

func (b *blockingUpstream) ListInventory(ctx context.Context, _ string, page, _ int) (*roblox.InventoryPage, error) {
	b.pages.Add(1)
	return inventoryPage(), nil
}

func TestService_Assets_ConcurrentMissesShareOneFetch(t *testing.T) {
	up := &blockingUpstream{release: make(chan struct{})}
	store := newFakeStore()
	svc := newTestService(store, up, Config{})

	const callers = 5
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Assets(context.Background(), Query{Username: "builder", UserID: "111"})
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(up.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, string(results[0]), string(results[i]))
	}
	assert.Equal(t, int32(1), up.shirts.Load())
	assert.Equal(t, int32(1), up.pages.Load())
	assert.Equal(t, 1, store.puts)
}

func TestService_Assets_ConcurrentMissesWithDifferentUsernamesShareOneFetch(t *testing.T) {
	up := &blockingUpstream{release: make(chan struct{})}
	store := newFakeStore()
	svc := newTestService(store, up, Config{})

	var wg sync.WaitGroup
	for _, name := range []string{"builder", "Builder", "someone-else"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := svc.Assets(context.Background(), Query{Username: name, UserID: "111"})
			assert.NoError(t, err)
		}(name)
	}

	time.Sleep(100 * time.Millisecond)
	close(up.release)
	wg.Wait()

	assert.Equal(t, int32(1), up.shirts.Load())
	assert.Equal(t, 1, store.puts)
}

func TestService_Ping(t *testing.T) {
	svc := NewService(newFakeStore(), new(mockUpstream), Config{})
	assert.NoError(t, svc.Ping(context.Background()))
}
