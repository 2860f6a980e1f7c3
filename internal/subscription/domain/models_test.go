package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRemoteStatus(t *testing.T) {
	cases := []struct {
		remote string
		want   SubscriptionStatus
	}{
		{"active", SubscriptionStatusActive},
		{"non-renewing", SubscriptionStatusActive},
		{"inactive", SubscriptionStatusExpired},
		{"complete", SubscriptionStatusExpired},
		{"cancelled", SubscriptionStatusCanceled},
		{"canceled", SubscriptionStatusCanceled},
		{"paused", SubscriptionStatusPaused},
		{"attention", SubscriptionStatusPastDue},
		{" Active ", SubscriptionStatusActive},
		{"", SubscriptionStatusUnknown},
		{"some-future-state", SubscriptionStatusUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FromRemoteStatus(tc.remote), tc.remote)
	}
}

func TestActivated(t *testing.T) {
	assert.True(t, SubscriptionStatusActive.Activated())
	assert.True(t, SubscriptionStatusTrialing.Activated())
	assert.False(t, SubscriptionStatusPending.Activated())
	assert.False(t, SubscriptionStatusUnknown.Activated())
	assert.False(t, SubscriptionStatusCanceled.Activated())
}
