package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/timmy/linkweaver/internal/domain"
	"github.com/timmy/linkweaver/internal/generator"
	"github.com/timmy/linkweaver/internal/keypool"
	"github.com/timmy/linkweaver/internal/matcher"
	"github.com/timmy/linkweaver/internal/provider"
	"github.com/timmy/linkweaver/internal/queue"
	"github.com/timmy/linkweaver/internal/repository"
	"github.com/timmy/linkweaver/internal/repository/repotest"
)

// fakeCompleter answers every call with a distinct, well-formed post.
type fakeCompleter struct {
	mu    sync.Mutex
	calls []provider.ChatRequest
}

func (c *fakeCompleter) Complete(_ context.Context, _ string, req provider.ChatRequest) (*provider.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	body, _ := json.Marshal(map[string]string{
		"title":            fmt.Sprintf("Post %d", len(c.calls)),
		"body":             "<p>body</p>",
		"meta_title":       "meta",
		"meta_description": "description",
	})
	return &provider.Response{Content: string(body), Usage: provider.Usage{TotalTokens: 120}, ReceivedAt: time.Now()}, nil
}

func (c *fakeCompleter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type harness struct {
	store     *repository.Store
	queue     *queue.Queue
	pool      *queue.Pool
	orch      *Orchestrator
	handlers  *JobHandlers
	titles    *RecentTitles
	completer *fakeCompleter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := repotest.NewStore(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := queue.New(rdb, queue.Options{Prefix: "test"})
	keys := keypool.NewManager(store.Credentials, nil, keypool.Config{DefaultWait: time.Hour}, nil)
	completer := &fakeCompleter{}
	titles := NewRecentTitles(rdb, "test", 3)

	handlers := NewJobHandlers(HandlerDeps{
		Store:     store,
		Queue:     q,
		Matcher:   matcher.New(store.Sites),
		Generator: generator.New(keys, completer),
		Pool:      keys,
		Titles:    titles,
	}, HandlerConfig{MinDelay: time.Minute})

	return &harness{
		store:     store,
		queue:     q,
		pool:      queue.NewPool(q, handlers, queue.PoolConfig{Concurrency: 1}, nil),
		orch:      NewOrchestrator(store, q, OrchestratorConfig{MaxSlotsPerBand: 10}),
		handlers:  handlers,
		titles:    titles,
		completer: completer,
	}
}

// drain runs jobs until nothing is waiting and returns how many ran.
func (h *harness) drain(t *testing.T) int {
	t.Helper()
	for n := 0; n < 200; n++ {
		ok, err := h.pool.ProcessNext(context.Background())
		require.NoError(t, err)
		if !ok {
			return n
		}
	}
	t.Fatal("queue did not drain")
	return 0
}

func (h *harness) addCredential(t *testing.T, key string, requests int, resetAt time.Time) {
	t.Helper()
	require.NoError(t, h.store.Credentials.Create(context.Background(), &domain.Credential{
		Key:               key,
		RequestsRemaining: requests,
		TokensRemaining:   100000,
		RequestsResetAt:   resetAt,
		TokensResetAt:     resetAt,
		Active:            true,
	}))
}

func backlinkRow(low, mid, high string) BacklinkRow {
	return BacklinkRow{
		Backlink:         "https://client.test/landing",
		PrimaryKeyword:   "pets",
		SecondaryKeyword: "dogs, cats",
		LowDR:            low,
		MidDR:            mid,
		HighDR:           high,
		Industry:         "animals",
	}
}

func website(url string, dr float64, industry string) WebsiteRow {
	return WebsiteRow{URL: url, Username: "admin", Password: "secret", DR: dr, Industry: industry}
}
