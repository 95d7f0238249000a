package keypool

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/linkweaver/internal/domain"
	"github.com/timmy/linkweaver/internal/logger"
	"github.com/timmy/linkweaver/internal/provider"
	"github.com/timmy/linkweaver/internal/repository"
	"github.com/timmy/linkweaver/internal/repository/repotest"
)

var testNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeProber struct {
	mu     sync.Mutex
	limits map[string]provider.RateLimits
	fail   map[string]error
	probed []string
}

func (p *fakeProber) Probe(_ context.Context, key string) (*provider.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = append(p.probed, key)
	if err := p.fail[key]; err != nil {
		return nil, err
	}
	return &provider.Response{Limits: p.limits[key], ReceivedAt: testNow}, nil
}

func intp(v int) *int { return &v }

func durp(d time.Duration) *time.Duration { return &d }

func newTestManager(t *testing.T, prober Prober) (*Manager, *repository.CredentialRepository) {
	t.Helper()
	store := repotest.NewStore(t)
	if prober == nil {
		prober = &fakeProber{}
	}
	m := NewManager(store.Credentials, prober, Config{DefaultWait: time.Hour}, nil)
	m.now = func() time.Time { return testNow }
	return m, store.Credentials
}

func seed(t *testing.T, repo *repository.CredentialRepository, creds ...*domain.Credential) {
	t.Helper()
	for _, c := range creds {
		require.NoError(t, repo.Create(context.Background(), c))
	}
}

func okFn(keys *[]string) RequestFunc {
	return func(_ context.Context, key string) (*provider.Response, error) {
		*keys = append(*keys, key)
		return &provider.Response{Content: "ok", ReceivedAt: testNow}, nil
	}
}

func TestAddCredentialRoundTrip(t *testing.T) {
	ctx := context.Background()
	prober := &fakeProber{limits: map[string]provider.RateLimits{
		"sk-good": {
			RequestsRemaining: intp(9999),
			TokensRemaining:   intp(199999),
			RequestsReset:     durp(6 * time.Millisecond),
			TokensReset:       durp(time.Minute),
		},
	}}
	m, repo := newTestManager(t, prober)

	cred, err := m.AddCredential(ctx, "sk-good")
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, cred.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, 9999, got.RequestsRemaining)
	assert.Equal(t, 199999, got.TokensRemaining)
	assert.True(t, testNow.Add(time.Minute).Equal(got.TokensResetAt))

	_, err = m.AddCredential(ctx, "sk-good")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestAddCredentialProbeFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	prober := &fakeProber{fail: map[string]error{"sk-bad": &provider.HTTPError{StatusCode: 401, Message: "invalid"}}}
	m, repo := newTestManager(t, prober)

	_, err := m.AddCredential(ctx, "sk-bad")
	assert.ErrorIs(t, err, ErrProbeFailed)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestExecuteRequestSkipsExhaustedCredential(t *testing.T) {
	ctx := context.Background()
	m, repo := newTestManager(t, nil)
	seed(t, repo,
		&domain.Credential{Key: "sk-first", Active: true, RequestsRemaining: 0, TokensRemaining: 1000, RequestsResetAt: testNow.Add(time.Hour)},
		&domain.Credential{Key: "sk-second", Active: true, RequestsRemaining: 10, TokensRemaining: 1000},
	)

	var used []string
	resp, err := m.ExecuteRequest(ctx, okFn(&used))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, []string{"sk-second"}, used)
}

func TestExecuteRequestRoundRobin(t *testing.T) {
	ctx := context.Background()
	m, repo := newTestManager(t, nil)
	seed(t, repo,
		&domain.Credential{Key: "sk-a", Active: true, RequestsRemaining: 10, TokensRemaining: 1000},
		&domain.Credential{Key: "sk-b", Active: true, RequestsRemaining: 10, TokensRemaining: 1000},
		&domain.Credential{Key: "sk-c", Active: true, RequestsRemaining: 10, TokensRemaining: 1000},
	)

	var used []string
	for i := 0; i < 4; i++ {
		_, err := m.ExecuteRequest(ctx, okFn(&used))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"sk-a", "sk-b", "sk-c", "sk-a"}, used)

	b, err := repo.GetByKey(ctx, "sk-b")
	require.NoError(t, err)
	assert.Equal(t, 9, b.RequestsRemaining, "one request reserved")
}

func TestExecuteRequestAllExhausted(t *testing.T) {
	ctx := context.Background()
	m, repo := newTestManager(t, nil)
	reset := testNow.Add(10 * time.Minute)
	seed(t, repo,
		&domain.Credential{Key: "sk-a", Active: true, RequestsRemaining: 0, TokensRemaining: 10, RequestsResetAt: reset},
		&domain.Credential{Key: "sk-b", Active: true, RequestsRemaining: 5, TokensRemaining: 0, TokensResetAt: testNow.Add(20 * time.Minute)},
	)

	calls := 0
	_, err := m.ExecuteRequest(ctx, func(context.Context, string) (*provider.Response, error) {
		calls++
		return &provider.Response{}, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 0, exhausted.Attempted)
	assert.True(t, reset.Equal(exhausted.NextAvailable))
	assert.Zero(t, calls)
	assert.Zero(t, m.Cursor(), "cursor does not move when nothing was served")
}

func TestExecuteRequestFailureDeactivatesAndMovesOn(t *testing.T) {
	ctx := context.Background()
	m, repo := newTestManager(t, nil)
	seed(t, repo,
		&domain.Credential{Key: "sk-a", Active: true, RequestsRemaining: 10, TokensRemaining: 1000},
		&domain.Credential{Key: "sk-b", Active: true, RequestsRemaining: 10, TokensRemaining: 1000},
	)

	var used []string
	resp, err := m.ExecuteRequest(ctx, func(_ context.Context, key string) (*provider.Response, error) {
		used = append(used, key)
		if key == "sk-a" {
			return nil, &provider.HTTPError{StatusCode: 401, Message: "revoked"}
		}
		return &provider.Response{
			Content:    "from b",
			ReceivedAt: testNow,
			Limits:     provider.RateLimits{RequestsRemaining: intp(3), TokensRemaining: intp(700)},
		}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "from b", resp.Content)
	assert.Equal(t, []string{"sk-a", "sk-b"}, used)

	a, err := repo.GetByKey(ctx, "sk-a")
	require.NoError(t, err)
	assert.False(t, a.Active)
	assert.Contains(t, a.Message, "revoked")

	b, err := repo.GetByKey(ctx, "sk-b")
	require.NoError(t, err)
	assert.Equal(t, 3, b.RequestsRemaining)
	assert.Equal(t, 700, b.TokensRemaining)
}

func TestExecuteRequestAllFailReportsLastError(t *testing.T) {
	ctx := context.Background()
	m, repo := newTestManager(t, nil)
	seed(t, repo,
		&domain.Credential{Key: "sk-a", Active: true, RequestsRemaining: 10, TokensRemaining: 1000},
		&domain.Credential{Key: "sk-b", Active: true, RequestsRemaining: 10, TokensRemaining: 1000},
	)

	calls := 0
	_, err := m.ExecuteRequest(ctx, func(context.Context, string) (*provider.Response, error) {
		calls++
		return nil, &provider.HTTPError{StatusCode: 500, Message: "upstream"}
	})
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, calls, "exactly one pass")
	assert.Equal(t, 2, exhausted.Attempted)
	var httpErr *provider.HTTPError
	assert.ErrorAs(t, err, &httpErr)
	assert.True(t, testNow.Add(time.Hour).Equal(exhausted.NextAvailable), "no active credential left")
}

func TestExecuteRequestConcurrentCallersCannotShareLastRequest(t *testing.T) {
	ctx := context.Background()
	m, repo := newTestManager(t, nil)
	seed(t, repo, &domain.Credential{
		Key: "sk-only", Active: true, RequestsRemaining: 1, TokensRemaining: 1000,
		RequestsResetAt: testNow.Add(time.Minute),
	})

	started := make(chan struct{})
	release := make(chan struct{})
	firstErr := make(chan error, 1)
	go func() {
		_, err := m.ExecuteRequest(ctx, func(context.Context, string) (*provider.Response, error) {
			close(started)
			<-release
			return &provider.Response{ReceivedAt: testNow}, nil
		})
		firstErr <- err
	}()

	<-started
	_, err := m.ExecuteRequest(ctx, func(context.Context, string) (*provider.Response, error) {
		t.Error("second caller must not get the credential")
		return nil, errors.New("unreachable")
	})
	assert.ErrorIs(t, err, ErrExhausted)

	close(release)
	assert.NoError(t, <-firstErr)
}

func TestRemoveCredentialResetsCursor(t *testing.T) {
	ctx := context.Background()
	m, repo := newTestManager(t, nil)
	seed(t, repo,
		&domain.Credential{Key: "sk-a", Active: true, RequestsRemaining: 10, TokensRemaining: 1000},
		&domain.Credential{Key: "sk-b", Active: true, RequestsRemaining: 10, TokensRemaining: 1000},
		&domain.Credential{Key: "sk-c", Active: true, RequestsRemaining: 10, TokensRemaining: 1000},
	)

	var used []string
	_, err := m.ExecuteRequest(ctx, okFn(&used))
	require.NoError(t, err)
	_, err = m.ExecuteRequest(ctx, okFn(&used))
	require.NoError(t, err)
	require.Equal(t, []string{"sk-a", "sk-b"}, used)

	require.NoError(t, m.RemoveCredential(ctx, "sk-b"))
	assert.Zero(t, m.Cursor())

	_, err = m.ExecuteRequest(ctx, okFn(&used))
	require.NoError(t, err)
	assert.Equal(t, "sk-a", used[2], "rotation restarts at the first credential")

	assert.ErrorIs(t, m.RemoveCredential(ctx, "sk-b"), ErrNotFound)
}

func TestNextAvailableTime(t *testing.T) {
	ctx := context.Background()

	t.Run("no active credentials", func(t *testing.T) {
		m, repo := newTestManager(t, nil)
		seed(t, repo, &domain.Credential{Key: "sk-off", Active: false, RequestsRemaining: 10, TokensRemaining: 10})

		got, err := m.NextAvailableTime(ctx)
		require.NoError(t, err)
		assert.True(t, testNow.Add(time.Hour).Equal(got))
	})

	t.Run("eligible credential", func(t *testing.T) {
		m, repo := newTestManager(t, nil)
		seed(t, repo, &domain.Credential{Key: "sk-a", Active: true, RequestsRemaining: 1, TokensRemaining: 1})
		got, err := m.NextAvailableTime(ctx)
		require.NoError(t, err)
		assert.True(t, testNow.Equal(got))
	})

	t.Run("earliest reset", func(t *testing.T) {
		m, repo := newTestManager(t, nil)
		seed(t, repo,
			&domain.Credential{Key: "sk-a", Active: true, RequestsRemaining: 0, TokensRemaining: 5, RequestsResetAt: testNow.Add(30 * time.Minute)},
			&domain.Credential{Key: "sk-b", Active: true, RequestsRemaining: 5, TokensRemaining: 0, TokensResetAt: testNow.Add(10 * time.Minute)},
		)
		got, err := m.NextAvailableTime(ctx)
		require.NoError(t, err)
		assert.True(t, testNow.Add(10*time.Minute).Equal(got))
	})
}

func TestRefreshKeys(t *testing.T) {
	ctx := context.Background()
	prober := &fakeProber{
		limits: map[string]provider.RateLimits{
			"sk-revived": {RequestsRemaining: intp(50), TokensRemaining: intp(5000)},
		},
		fail: map[string]error{"sk-dead": &provider.HTTPError{StatusCode: 401, Message: "invalid api key"}},
	}
	m, repo := newTestManager(t, prober)
	seed(t, repo,
		&domain.Credential{Key: "sk-revived", Active: true, Message: "old failure"},
		&domain.Credential{Key: "sk-dead", Active: true, RequestsRemaining: 10, TokensRemaining: 10},
	)
	revived, err := repo.GetByKey(ctx, "sk-revived")
	require.NoError(t, err)
	require.NoError(t, repo.SetState(ctx, revived.ID, false, "old failure"))

	report, err := m.RefreshKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, RefreshReport{Active: 1, Inactive: 1}, report)
	assert.ElementsMatch(t, []string{"sk-revived", "sk-dead"}, prober.probed)

	revived, err = repo.GetByKey(ctx, "sk-revived")
	require.NoError(t, err)
	assert.True(t, revived.Active)
	assert.Empty(t, revived.Message)
	assert.Equal(t, 50, revived.RequestsRemaining)
	assert.Equal(t, 5000, revived.TokensRemaining)

	dead, err := repo.GetByKey(ctx, "sk-dead")
	require.NoError(t, err)
	assert.False(t, dead.Active)
	assert.Contains(t, dead.Message, "invalid api key")
}

// quotaFailStore rejects every quota write.
type quotaFailStore struct {
	*repository.CredentialRepository
}

func (quotaFailStore) UpdateQuota(context.Context, uint, repository.CredentialQuota) error {
	return errors.New("quota write refused")
}

func TestQuotaWriteFailureIsLoggedAndKeyStillDeactivated(t *testing.T) {
	limited := &provider.HTTPError{
		StatusCode: 429,
		Message:    "rate limited",
		Limits:     provider.RateLimits{RequestsRemaining: intp(0), TokensRemaining: intp(0)},
	}
	tests := []struct {
		name string
		run  func(ctx context.Context, m *Manager) error
	}{
		{
			name: "request failure",
			run: func(ctx context.Context, m *Manager) error {
				_, err := m.ExecuteRequest(ctx, func(context.Context, string) (*provider.Response, error) {
					return nil, limited
				})
				return err
			},
		},
		{
			name: "recalibration failure",
			run: func(ctx context.Context, m *Manager) error {
				_, err := m.RefreshKeys(ctx)
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := logger.New(&logger.Config{Level: "debug", Format: "json", Output: &buf, ServiceName: "keypool-test"})
			ctx := l.WithContext(context.Background())

			repo := repotest.NewStore(t).Credentials
			seed(t, repo, &domain.Credential{Key: "sk-a", Active: true, RequestsRemaining: 5, TokensRemaining: 500})
			prober := &fakeProber{fail: map[string]error{"sk-a": limited}}
			m := NewManager(quotaFailStore{repo}, prober, Config{}, nil)
			m.now = func() time.Time { return testNow }

			_ = tt.run(ctx, m)

			assert.Contains(t, buf.String(), "Failed to record rate limits: quota write refused")
			a, err := repo.GetByKey(ctx, "sk-a")
			require.NoError(t, err)
			assert.False(t, a.Active)
			assert.Contains(t, a.Message, "rate limited")
		})
	}
}
