package sheets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetflow/internal/core"
	"budgetflow/internal/sheets/memory"
)

func TestAlertLogDeliver(t *testing.T) {
	store := memory.New()
	l := NewAlertLog(store, "")
	l.now = func() time.Time { return time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) }

	n := core.Notification{
		AlertID: "a1", Owner: "u1", Type: core.AlertSpendExceeded,
		Recipient: "u1@example.com", Subject: "Groceries limit exceeded", Body: "spent 110.00",
	}
	require.NoError(t, l.Deliver(context.Background(), n))

	rows := store.Rows("Alerts")
	require.Len(t, rows, 1)
	assert.Equal(t, []any{"2025-03-04T10:00:00Z", "a1", "u1", "spend_exceeded",
		"u1@example.com", "Groceries limit exceeded", "spent 110.00"}, rows[0])
	assert.Len(t, rows[0], len(Header))
	assert.Equal(t, "sheets", l.Name())
}

func TestAlertLogDeliverError(t *testing.T) {
	store := memory.New()
	store.FailWith(errors.New("quota"))
	err := NewAlertLog(store, "Log").Deliver(context.Background(), core.Notification{AlertID: "a1"})
	assert.ErrorContains(t, err, "append alert row: quota")
}
