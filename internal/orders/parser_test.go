package orders_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezbo/shopbot/internal/orders"
)

const confirmationReply = `Thank you! Your order has been placed!
   - Name: Rahim Uddin
   - Mobile: 01712345678
   - Address: House 12, Road 5, Dhanmondi, Dhaka
   - Product: Panjabi (L, Blue)
   - Price: 800BDT
   - Payment Method: Bkash (Txn ID: TX12345)
   - Total: 860BDT
We will deliver it soon.`

func TestParseConfirmation(t *testing.T) {
	t.Parallel()

	order, err := orders.ParseConfirmation(confirmationReply, "BDT")
	require.NoError(t, err)

	assert.Equal(t, "Rahim Uddin", order.Name)
	assert.Equal(t, "01712345678", order.Mobile)
	assert.Equal(t, "House 12, Road 5, Dhanmondi, Dhaka", order.Address)
	assert.Equal(t, "Panjabi (L, Blue)", order.Product)
	assert.Equal(t, int64(800), order.Price)
	assert.Equal(t, int64(860), order.Total)
	assert.Equal(t, int64(60), order.DeliveryCharge)
	assert.Equal(t, int64(800), order.Subtotal)
	assert.Equal(t, "Bkash", order.PaymentMethod)
	assert.Equal(t, "TX12345", order.TransactionID)
	assert.Equal(t, orders.StatusPreparing, order.Status)
	assert.NotEmpty(t, order.Date)
}

func TestParseConfirmation_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
	}{
		{
			name:  "no marker",
			reply: "- Name: A\n- Mobile: 1\n- Product: X\n- Price: 10BDT",
		},
		{
			name:  "missing name",
			reply: "Your order has been placed!\n- Mobile: 1\n- Product: X\n- Price: 10BDT",
		},
		{
			name:  "missing mobile",
			reply: "Your order has been placed!\n- Name: A\n- Product: X\n- Price: 10BDT",
		},
		{
			name:  "missing product",
			reply: "Your order has been placed!\n- Name: A\n- Mobile: 1\n- Price: 10BDT",
		},
		{
			name:  "missing price",
			reply: "Your order has been placed!\n- Name: A\n- Mobile: 1\n- Product: X",
		},
		{
			name:  "unparseable price",
			reply: "Your order has been placed!\n- Name: A\n- Mobile: 1\n- Product: X\n- Price: tenBDT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := orders.ParseConfirmation(tt.reply, "BDT")
			require.Error(t, err)
			assert.True(t, errors.Is(err, orders.ErrParse), "expected ErrParse, got %v", err)
		})
	}
}

func TestParseConfirmation_TotalDefaultsToPrice(t *testing.T) {
	t.Parallel()

	reply := "Your order has been placed!\n- Name: A\n- Mobile: 1\n- Product: X\n- Price: 750BDT\n- Payment Method: COD"
	order, err := orders.ParseConfirmation(reply, "BDT")
	require.NoError(t, err)

	assert.Equal(t, int64(750), order.Price)
	assert.Equal(t, int64(750), order.Total)
	assert.Equal(t, int64(0), order.DeliveryCharge)
	assert.Equal(t, "COD", order.PaymentMethod)
	assert.Empty(t, order.TransactionID)
}

func TestParseConfirmation_AmountWithSpaceAndFraction(t *testing.T) {
	t.Parallel()

	reply := "Your order has been placed!\n- Name: A\n- Mobile: 1\n- Product: X\n- Price: 799.99 BDT\n- Total: 859.50 BDT"
	order, err := orders.ParseConfirmation(reply, "BDT")
	require.NoError(t, err)

	assert.Equal(t, int64(799), order.Price)
	assert.Equal(t, int64(859), order.Total)
}

func TestContainsConfirmation(t *testing.T) {
	t.Parallel()

	assert.True(t, orders.ContainsConfirmation("Great news! Your order has been placed! Details follow."))
	assert.False(t, orders.ContainsConfirmation("Your order will be placed once you confirm."))
}
