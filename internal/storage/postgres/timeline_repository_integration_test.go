package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestTimelineRepository_PostgresHistory(t *testing.T) {
	store := migratedStore(t)
	seedCatalog(t, store)
	repo := store.Timeline()
	ctx := context.Background()

	placedAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)
	order := seedOrder(t, store, "timeline-order", 1000, placedAt, "p-1")

	require.NoError(t, repo.Append(ctx, domain.OrderPlacedEvent(order.ID, "cart-1", placedAt)))
	require.NoError(t, repo.Append(ctx, domain.StatusChangedEvent(order.ID,
		domain.OrderStatusAccepted, domain.OrderStatusShipped, placedAt.Add(10*time.Second))))
	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{
		OrderID: order.ID,
		Type:    domain.TimelineOrderStatusChanged,
		Reason:  "shipped -> delivered",
	}), "zero occurred is stamped with the current time")

	history, err := repo.List(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, domain.TimelineOrderPlaced, history[0].Type)
	require.Equal(t, "accepted -> shipped", history[1].Reason)
	require.Equal(t, "shipped -> delivered", history[2].Reason)
	require.False(t, history[2].Occurred.IsZero())
	for i := 1; i < len(history); i++ {
		require.False(t, history[i].Occurred.Before(history[i-1].Occurred), "history is ordered by time")
	}
}

func TestTimelineRepository_PostgresUnknownOrder(t *testing.T) {
	repo := migratedStore(t).Timeline()
	ctx := context.Background()

	err := repo.Append(ctx, domain.OrderPlacedEvent("ghost-order", "cart-1", time.Now()))
	require.Error(t, err, "timeline rows reference orders")

	history, err := repo.List(ctx, "ghost-order")
	require.NoError(t, err)
	require.Empty(t, history)
}
