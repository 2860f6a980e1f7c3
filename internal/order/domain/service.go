package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service derives aggregate order status from the order's transactions.
type Service interface {
	// SyncOrderStatuses recomputes the order's status after a transaction
	// changed state.
	SyncOrderStatuses(ctx context.Context, orderID snowflake.ID) error
}
