package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler(t *testing.T) {
	f := newFixture()

	_, err := NewScheduler(f.svc, "every now and then", nopLogger{})
	assert.Error(t, err)

	s, err := NewScheduler(f.svc, "@every 1h", nopLogger{})
	require.NoError(t, err)
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestScheduler_sweep(t *testing.T) {
	f := newFixture()
	orderID := f.order(t)
	f.gateway.set(orderID, StatusPaid)

	s, err := NewScheduler(f.svc, "@every 1h", nopLogger{})
	require.NoError(t, err)
	s.sweep()

	assert.Equal(t, OrderPaid, f.repo.orders[orderID].Status)
}
