package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDRBandContains(t *testing.T) {
	tests := []struct {
		dr   int
		want DRBand
	}{
		{0, DRBandLow},
		{29, DRBandLow},
		{30, DRBandMid},
		{59, DRBandMid},
		{60, DRBandHigh},
		{100, DRBandHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BandOf(tt.dr), "dr=%d", tt.dr)
		assert.True(t, tt.want.Contains(tt.dr))
	}
	assert.False(t, DRBandLow.Contains(30))
	assert.False(t, DRBandHigh.Contains(101))
}

func TestRequirementSlots(t *testing.T) {
	r := BacklinkRequirement{LowDR: 2, MidDR: 0, HighDR: 1}
	assert.Equal(t, 3, r.TotalSlots())
	assert.Equal(t, 2, r.Count(DRBandLow))
	assert.Equal(t, 0, r.Count(DRBandMid))
	assert.Equal(t, 1, r.Count(DRBandHigh))
}

func TestCredentialEligibility(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(10 * time.Minute)

	tests := []struct {
		name      string
		cred      Credential
		eligible  bool
		available time.Time
	}{
		{"has quota", Credential{Active: true, RequestsRemaining: 5, TokensRemaining: 100}, true, now},
		{"inactive", Credential{Active: false, RequestsRemaining: 5, TokensRemaining: 100}, false, now},
		{"no requests before reset", Credential{Active: true, RequestsRemaining: 0, TokensRemaining: 100, RequestsResetAt: later}, false, later},
		{"no tokens before reset", Credential{Active: true, RequestsRemaining: 3, TokensRemaining: 0, TokensResetAt: later}, false, later},
		{"no requests after reset", Credential{Active: true, RequestsRemaining: 0, TokensRemaining: 100, RequestsResetAt: now.Add(-time.Second)}, true, now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.eligible, tt.cred.Eligible(now))
			if tt.cred.Active {
				assert.Equal(t, tt.available, tt.cred.AvailableAt(now))
			}
		})
	}
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "****cdef", MaskKey("sk-abcdef"))
	assert.Equal(t, "****", MaskKey("abc"))
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload(JobKindContent, []byte(`{"assignment_id":"a1","project_id":"p1"}`))
	require.NoError(t, err)
	content, ok := p.(ContentPayload)
	require.True(t, ok)
	assert.Equal(t, "a1", content.AssignmentID)
	assert.Equal(t, JobKindContent, content.Kind())

	_, err = DecodePayload("cleanup", []byte(`{}`))
	assert.ErrorContains(t, err, "unknown job kind")
}
