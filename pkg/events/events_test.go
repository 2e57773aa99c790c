package events

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p8fs/p8fs/internal/bytesize"
)

func TestClassifyTierBoundaries(t *testing.T) {
	tests := []struct {
		name string
		size int64
		want Tier
	}{
		{"zero", 0, TierSmall},
		{"one byte", 1, TierSmall},
		{"just under small boundary", int64(100*bytesize.MiB) - 1, TierSmall},
		{"exactly 100 MiB", int64(100 * bytesize.MiB), TierMedium},
		{"just under large boundary", int64(bytesize.GiB) - 1, TierMedium},
		{"exactly 1 GiB", int64(bytesize.GiB), TierLarge},
		{"multi-gigabyte", int64(15 * bytesize.GiB), TierLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyTier(tt.size))
		})
	}
}

func TestParseEvent(t *testing.T) {
	payload := []byte(`{
		"event_type": "create",
		"path": "/buckets/acme/uploads/2026/08/24/report.txt",
		"tenant_id": "acme",
		"size": 1048576,
		"content_type": "text/plain",
		"timestamp": 1755993600.5
	}`)

	ev, err := ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, EventCreate, ev.EventType)
	assert.Equal(t, "acme", ev.TenantID)
	assert.Equal(t, int64(1048576), ev.Size)
	assert.Equal(t, TierSmall, ev.Tier())
}

func TestParseEventRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{{{`},
		{"missing path", `{"event_type":"create","tenant_id":"acme","size":10}`},
		{"missing tenant", `{"event_type":"create","path":"/buckets/a/x","size":10}`},
		{"unknown event type", `{"event_type":"rename","path":"/buckets/a/x","tenant_id":"a","size":10}`},
		{"negative size", `{"event_type":"create","path":"/buckets/a/x","tenant_id":"a","size":-1}`},
		{"missing size", `{"event_type":"create","path":"/buckets/a/x","tenant_id":"a"}`},
		{"null size", `{"event_type":"create","path":"/buckets/a/x","tenant_id":"a","size":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	ev := &StorageEvent{
		EventType: EventDelete,
		Path:      "/buckets/acme/uploads/2026/08/24/old.md",
		TenantID:  "acme",
		Size:      42,
	}
	data, err := ev.Encode()
	require.NoError(t, err)

	back, err := ParseEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ev, back)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindUnknown},
		{ErrParse, KindParse},
		{fmt.Errorf("wrap: %w", ErrNotFound), KindNotFound},
		{fmt.Errorf("wrap: %w", ErrTransient), KindTransient},
		{ErrValidation, KindValidation},
		{ErrIndexing, KindIndexing},
		{ErrFatal, KindFatal},
		{errors.New("something else"), KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "err=%v", tt.err)
	}
}

func TestParseTier(t *testing.T) {
	for _, valid := range []string{"small", "medium", "large"} {
		tier, ok := ParseTier(valid)
		assert.True(t, ok)
		assert.Equal(t, Tier(valid), tier)
	}
	_, ok := ParseTier("huge")
	assert.False(t, ok)
}
