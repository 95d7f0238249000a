// Package keypool rotates requests across a pool of rate-limited provider API keys.
package keypool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/timmy/linkweaver/internal/domain"
	"github.com/timmy/linkweaver/internal/logger"
	"github.com/timmy/linkweaver/internal/provider"
	"github.com/timmy/linkweaver/internal/repository"
)

// CredentialStore is the record store the pool keeps its credentials in.
type CredentialStore interface {
	Create(ctx context.Context, c *domain.Credential) error
	GetByID(ctx context.Context, id uint) (*domain.Credential, error)
	GetByKey(ctx context.Context, key string) (*domain.Credential, error)
	List(ctx context.Context) ([]domain.Credential, error)
	ListActive(ctx context.Context) ([]domain.Credential, error)
	UpdateQuota(ctx context.Context, id uint, q repository.CredentialQuota) error
	ReserveRequest(ctx context.Context, id uint) error
	SetState(ctx context.Context, id uint, active bool, message string) error
	DeleteByKey(ctx context.Context, key string) (*domain.Credential, error)
	SumActiveTokens(ctx context.Context) (int64, error)
}

// Prober makes the minimal live call used to validate and calibrate a key.
type Prober interface {
	Probe(ctx context.Context, key string) (*provider.Response, error)
}

// RequestFunc performs one provider call with the given key.
type RequestFunc func(ctx context.Context, key string) (*provider.Response, error)

// Config tunes the pool.
type Config struct {
	// DefaultWait is how far out NextAvailableTime lands when no credential is active.
	DefaultWait time.Duration
}

// Manager owns the credential pool and its rotation cursor.
//
// All selection and quota writes happen under mu, so concurrent callers cannot
// both take the last request of a credential. Provider calls run outside mu.
type Manager struct {
	store   CredentialStore
	prober  Prober
	cfg     Config
	metrics *Metrics
	now     func() time.Time

	mu sync.Mutex
	// cursor is the ID of the credential handed out last; rotation resumes after it.
	// Zero means start from the lowest ID.
	cursor uint
}

// NewManager creates a Manager. metrics may be nil.
func NewManager(store CredentialStore, prober Prober, cfg Config, metrics *Metrics) *Manager {
	if cfg.DefaultWait <= 0 {
		cfg.DefaultWait = time.Hour
	}
	return &Manager{
		store:   store,
		prober:  prober,
		cfg:     cfg,
		metrics: metrics,
		now:     time.Now,
	}
}

func (m *Manager) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(logger.SetComponent(ctx, "keypool"))
}

// AddCredential probes key and stores it as active with the probed quota.
// Nothing is stored if the probe fails.
func (m *Manager) AddCredential(ctx context.Context, key string) (*domain.Credential, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrProbeFailed)
	}
	if _, err := m.store.GetByKey(ctx, key); err == nil {
		return nil, ErrDuplicate
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("look up credential: %w", err)
	}

	resp, err := m.prober.Probe(ctx, key)
	if err != nil {
		m.log(ctx).Warnf("Probe rejected new key %s: %v", domain.MaskKey(key), err)
		return nil, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}

	cred := &domain.Credential{Key: key, Active: true}
	applyLimits(cred, resp.Limits, m.receivedAt(resp.ReceivedAt))

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Create(ctx, cred); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}
	m.log(ctx).WithField(logger.FieldCredentialID, cred.ID).Infof("Added credential %s", cred.MaskedKey())
	return cred, nil
}

// RemoveCredential deletes the credential holding key. If it was the cursor,
// rotation restarts from the first credential.
func (m *Manager) RemoveCredential(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed, err := m.store.DeleteByKey(ctx, strings.TrimSpace(key))
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if removed.ID == m.cursor {
		m.cursor = 0
	}
	m.log(ctx).WithField(logger.FieldCredentialID, removed.ID).Infof("Removed credential %s", removed.MaskedKey())
	return nil
}

// Cursor returns the ID of the credential handed out last.
func (m *Manager) Cursor() uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// ExecuteRequest runs fn with the next eligible credential in rotation.
//
// Credentials are visited in ascending ID order starting after the cursor, at
// most once each. Ineligible credentials are skipped. A failing call
// deactivates its credential and the scan moves on. After one full pass with
// no success it returns an *ExhaustedError.
func (m *Manager) ExecuteRequest(ctx context.Context, fn RequestFunc) (*provider.Response, error) {
	order, err := m.rotation(ctx)
	if err != nil {
		return nil, err
	}

	attempted := 0
	var lastErr error
	for _, id := range order {
		cred, ok, err := m.reserve(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		attempted++
		callCtx := logger.SetCredentialID(ctx, cred.ID)
		resp, callErr := fn(callCtx, cred.Key)
		if callErr != nil && ctx.Err() != nil {
			// Cancelled by the caller, not the credential's fault.
			return nil, ctx.Err()
		}
		if callErr != nil {
			lastErr = callErr
			m.metrics.request(outcomeFailure)
			m.markFailed(callCtx, cred, callErr)
			continue
		}

		m.metrics.request(outcomeSuccess)
		m.recordLimits(callCtx, cred.ID, resp.Limits, m.receivedAt(resp.ReceivedAt))
		return resp, nil
	}

	m.metrics.request(outcomeExhausted)
	next, err := m.NextAvailableTime(ctx)
	if err != nil {
		next = m.now().Add(m.cfg.DefaultWait)
	}
	return nil, &ExhaustedError{NextAvailable: next, Attempted: attempted, LastErr: lastErr}
}

// rotation returns active credential IDs in the order this call will visit them.
func (m *Manager) rotation(ctx context.Context) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	creds, err := m.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	start := 0
	for i, c := range creds {
		if c.ID > m.cursor {
			start = i
			break
		}
	}
	order := make([]uint, 0, len(creds))
	for i := range creds {
		order = append(order, creds[(start+i)%len(creds)].ID)
	}
	return order, nil
}

// reserve re-reads the credential and, if it is still eligible, takes one
// request off its count and moves the cursor to it.
func (m *Manager) reserve(ctx context.Context, id uint) (*domain.Credential, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load credential %d: %w", id, err)
	}
	if !cred.Eligible(m.now()) {
		return nil, false, nil
	}
	if err := m.store.ReserveRequest(ctx, id); err != nil {
		return nil, false, fmt.Errorf("reserve credential %d: %w", id, err)
	}
	m.cursor = id
	return cred, true, nil
}

func (m *Manager) markFailed(ctx context.Context, cred *domain.Credential, callErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var httpErr *provider.HTTPError
	if errors.As(callErr, &httpErr) && !httpErr.Limits.Empty() {
		if err := m.store.UpdateQuota(ctx, cred.ID, quotaFrom(httpErr.Limits, m.now())); err != nil {
			m.log(ctx).Errorf("Failed to record rate limits: %v", err)
		}
	}
	if err := m.store.SetState(ctx, cred.ID, false, callErr.Error()); err != nil {
		m.log(ctx).Errorf("Failed to deactivate credential: %v", err)
		return
	}
	m.log(ctx).Warnf("Deactivated credential %s: %v", cred.MaskedKey(), callErr)
}

func (m *Manager) recordLimits(ctx context.Context, id uint, limits provider.RateLimits, at time.Time) {
	if limits.Empty() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.UpdateQuota(ctx, id, quotaFrom(limits, at)); err != nil {
		m.log(ctx).Errorf("Failed to record rate limits: %v", err)
	}
}

// NextAvailableTime returns when the pool can next serve a request: now if any
// active credential is eligible, else the earliest time one replenishes, else
// now plus the configured default wait when nothing is active.
func (m *Manager) NextAvailableTime(ctx context.Context) (time.Time, error) {
	creds, err := m.store.ListActive(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("list credentials: %w", err)
	}
	now := m.now()
	if len(creds) == 0 {
		return now.Add(m.cfg.DefaultWait), nil
	}
	var earliest time.Time
	for _, c := range creds {
		at := c.AvailableAt(now)
		if earliest.IsZero() || at.Before(earliest) {
			earliest = at
		}
	}
	return earliest, nil
}

// RefreshReport summarises one recalibration pass.
type RefreshReport struct {
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

// RefreshKeys re-probes every stored credential, active or not. A passing
// probe overwrites the quota and reactivates the key; a failing one
// deactivates it with the probe's error.
func (m *Manager) RefreshKeys(ctx context.Context) (RefreshReport, error) {
	creds, err := m.store.List(ctx)
	if err != nil {
		return RefreshReport{}, fmt.Errorf("list credentials: %w", err)
	}

	var report RefreshReport
	for _, c := range creds {
		cctx := logger.SetCredentialID(ctx, c.ID)
		resp, probeErr := m.prober.Probe(cctx, c.Key)

		var err error
		m.mu.Lock()
		if probeErr != nil {
			var httpErr *provider.HTTPError
			if errors.As(probeErr, &httpErr) && !httpErr.Limits.Empty() {
				if qerr := m.store.UpdateQuota(cctx, c.ID, quotaFrom(httpErr.Limits, m.now())); qerr != nil {
					m.log(cctx).Errorf("Failed to record rate limits: %v", qerr)
				}
			}
			err = m.store.SetState(cctx, c.ID, false, probeErr.Error())
			report.Inactive++
		} else {
			if !resp.Limits.Empty() {
				err = m.store.UpdateQuota(cctx, c.ID, quotaFrom(resp.Limits, m.receivedAt(resp.ReceivedAt)))
			}
			if err == nil {
				err = m.store.SetState(cctx, c.ID, true, "")
			}
			report.Active++
		}
		m.mu.Unlock()

		if err != nil {
			return report, fmt.Errorf("update credential %d: %w", c.ID, err)
		}
		if probeErr != nil {
			m.log(cctx).Warnf("Recalibration deactivated %s: %v", c.MaskedKey(), probeErr)
		}
	}

	if m.metrics != nil {
		m.metrics.ActiveCredentials.Set(float64(report.Active))
	}
	m.log(ctx).Infof("Recalibrated credentials: active=%d inactive=%d", report.Active, report.Inactive)
	return report, nil
}

// TotalTokensRemaining sums tokens remaining across active credentials.
func (m *Manager) TotalTokensRemaining(ctx context.Context) (int64, error) {
	return m.store.SumActiveTokens(ctx)
}

// Credentials lists the pool in rotation order.
func (m *Manager) Credentials(ctx context.Context) ([]domain.Credential, error) {
	return m.store.List(ctx)
}

func (m *Manager) receivedAt(t time.Time) time.Time {
	if t.IsZero() {
		return m.now()
	}
	return t
}

// quotaFrom turns relative rate-limit headers into stored counters and absolute reset times.
func quotaFrom(l provider.RateLimits, at time.Time) repository.CredentialQuota {
	q := repository.CredentialQuota{
		RequestsRemaining: l.RequestsRemaining,
		TokensRemaining:   l.TokensRemaining,
	}
	if l.RequestsReset != nil {
		t := at.Add(*l.RequestsReset)
		q.RequestsResetAt = &t
	}
	if l.TokensReset != nil {
		t := at.Add(*l.TokensReset)
		q.TokensResetAt = &t
	}
	return q
}

// applyLimits fills a new credential from probe limits. Missing resets default to at.
func applyLimits(c *domain.Credential, l provider.RateLimits, at time.Time) {
	q := quotaFrom(l, at)
	if q.RequestsRemaining != nil {
		c.RequestsRemaining = *q.RequestsRemaining
	}
	if q.TokensRemaining != nil {
		c.TokensRemaining = *q.TokensRemaining
	}
	c.RequestsResetAt = at
	if q.RequestsResetAt != nil {
		c.RequestsResetAt = *q.RequestsResetAt
	}
	c.TokensResetAt = at
	if q.TokensResetAt != nil {
		c.TokensResetAt = *q.TokensResetAt
	}
}
