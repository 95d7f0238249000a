// Package matcher selects candidate placement sites for a keyword, industry and DR range.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/timmy/linkweaver/internal/domain"
	"github.com/timmy/linkweaver/internal/repository"
)

// FallbackSize is how many of the highest-DR sites are returned when no site
// matches on industry or keyword.
const FallbackSize = 5

// ErrInvalidRange is returned when the clamped upper DR bound is below the lower one.
var ErrInvalidRange = errors.New("matcher: DR upper bound is below lower bound")

// SiteFinder loads candidate sites.
type SiteFinder interface {
	Find(ctx context.Context, f repository.SiteFilter) ([]domain.CandidateSite, error)
}

// Query describes one placement band to fill.
type Query struct {
	ProjectID         string
	PrimaryKeyword    string
	SecondaryKeywords []string
	Industry          string
	// DRLow and DRHigh bound the range as [DRLow, DRHigh); DRHigh of 100 is inclusive.
	DRLow  int
	DRHigh int
}

// BandQuery builds the Query for one DR band of a requirement.
func BandQuery(projectID string, req domain.BacklinkRequirement, band domain.DRBand) Query {
	low, high := band.Bounds()
	return Query{
		ProjectID:         projectID,
		PrimaryKeyword:    req.PrimaryKeyword,
		SecondaryKeywords: req.SecondaryKeywords,
		Industry:          req.Industry,
		DRLow:             low,
		DRHigh:            high,
	}
}

// Matcher picks sites from the project's own and the pool-wide sites.
type Matcher struct {
	sites SiteFinder
}

// New creates a Matcher.
func New(sites SiteFinder) *Matcher {
	return &Matcher{sites: sites}
}

// MatchSites returns the IDs of sites in the DR range whose industry equals the
// primary keyword, is one of the secondary keywords, or equals the industry.
// Any one signal is enough. With no match it falls back to the FallbackSize
// highest-DR sites in range, then to the FallbackSize highest-DR sites overall,
// so it only comes back empty when the project has no sites at all.
func (m *Matcher) MatchSites(ctx context.Context, q Query) ([]string, error) {
	low, high := clamp(q.DRLow), clamp(q.DRHigh)
	if high < low {
		return nil, fmt.Errorf("%w: low=%d high=%d", ErrInvalidRange, low, high)
	}

	inRange, err := m.sites.Find(ctx, repository.SiteFilter{
		ProjectID:  q.ProjectID,
		MinDR:      low,
		MaxDR:      high,
		IncludeMax: high == domain.MaxDR,
	})
	if err != nil {
		return nil, fmt.Errorf("find sites in DR %d-%d: %w", low, high, err)
	}

	var matched []string
	for _, s := range inRange {
		if affinity(s, q) {
			matched = append(matched, s.ID)
		}
	}
	if len(matched) > 0 {
		return matched, nil
	}
	if len(inRange) > 0 {
		return ids(inRange[:min(FallbackSize, len(inRange))]), nil
	}

	top, err := m.sites.Find(ctx, repository.SiteFilter{
		ProjectID:  q.ProjectID,
		MinDR:      0,
		MaxDR:      domain.MaxDR,
		IncludeMax: true,
		Limit:      FallbackSize,
	})
	if err != nil {
		return nil, fmt.Errorf("find fallback sites: %w", err)
	}
	return ids(top), nil
}

func affinity(s domain.CandidateSite, q Query) bool {
	tag := strings.TrimSpace(s.Industry)
	if tag == "" {
		return false
	}
	if strings.EqualFold(tag, strings.TrimSpace(q.PrimaryKeyword)) {
		return true
	}
	if q.Industry != "" && strings.EqualFold(tag, strings.TrimSpace(q.Industry)) {
		return true
	}
	for _, kw := range q.SecondaryKeywords {
		if strings.EqualFold(tag, strings.TrimSpace(kw)) {
			return true
		}
	}
	return false
}

func clamp(dr int) int {
	return max(0, min(domain.MaxDR, dr))
}

func ids(sites []domain.CandidateSite) []string {
	out := make([]string, 0, len(sites))
	for _, s := range sites {
		out = append(out, s.ID)
	}
	return out
}
