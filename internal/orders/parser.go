package orders

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ConfirmationMarker is the exact string the assistant must include in a
// reply for it to be treated as an order confirmation.
const ConfirmationMarker = "Your order has been placed!"

// ErrParse indicates a confirmation candidate that is missing or has an
// unparseable required field. The candidate is discarded; fields are never
// guessed.
var ErrParse = errors.New("confirmation parse error")

// ContainsConfirmation reports whether the reply carries the confirmation
// marker.
func ContainsConfirmation(reply string) bool {
	return strings.Contains(reply, ConfirmationMarker)
}

// ParseConfirmation extracts an order from a confirmation reply using a
// strict line-prefix grammar:
//
//	- Name: ...
//	- Mobile: ...
//	- Address: ...
//	- Product: ...
//	- Price: <amount><currency>
//	- Payment Method: <method> [(Txn ID: <id>)]
//	- Total: <amount><currency>
//
// Name, mobile, product, and price are required; their absence yields
// ErrParse. A missing total defaults to the price, making the delivery
// charge zero; this matches confirmations for orders collected before a
// delivery region is known. On success delivery_charge = total - price,
// subtotal = price, status = Preparing, and date = today.
func ParseConfirmation(reply, currency string) (*Order, error) {
	if !ContainsConfirmation(reply) {
		return nil, fmt.Errorf("%w: missing confirmation marker", ErrParse)
	}

	order := &Order{}
	var havePrice, haveTotal bool

	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "- Name:"):
			order.Name = strings.TrimSpace(strings.TrimPrefix(line, "- Name:"))
		case strings.HasPrefix(line, "- Mobile:"):
			order.Mobile = strings.TrimSpace(strings.TrimPrefix(line, "- Mobile:"))
		case strings.HasPrefix(line, "- Address:"):
			order.Address = strings.TrimSpace(strings.TrimPrefix(line, "- Address:"))
		case strings.HasPrefix(line, "- Product:"):
			order.Product = strings.TrimSpace(strings.TrimPrefix(line, "- Product:"))
		case strings.HasPrefix(line, "- Price:"):
			amount, err := parseAmount(strings.TrimPrefix(line, "- Price:"), currency)
			if err != nil {
				return nil, fmt.Errorf("%w: bad price: %v", ErrParse, err)
			}
			order.Price = amount
			havePrice = true
		case strings.HasPrefix(line, "- Payment Method:"):
			method := strings.TrimSpace(strings.TrimPrefix(line, "- Payment Method:"))
			if idx := strings.Index(method, "(Txn ID:"); idx >= 0 {
				txn := method[idx+len("(Txn ID:"):]
				order.TransactionID = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(txn), ")"))
				method = strings.TrimSpace(method[:idx])
			}
			order.PaymentMethod = method
		case strings.HasPrefix(line, "- Total:"):
			amount, err := parseAmount(strings.TrimPrefix(line, "- Total:"), currency)
			if err != nil {
				return nil, fmt.Errorf("%w: bad total: %v", ErrParse, err)
			}
			order.Total = amount
			haveTotal = true
		}
	}

	switch {
	case order.Name == "":
		return nil, fmt.Errorf("%w: missing name", ErrParse)
	case order.Mobile == "":
		return nil, fmt.Errorf("%w: missing mobile", ErrParse)
	case order.Product == "":
		return nil, fmt.Errorf("%w: missing product", ErrParse)
	case !havePrice:
		return nil, fmt.Errorf("%w: missing price", ErrParse)
	}

	if !haveTotal {
		order.Total = order.Price
	}

	order.DeliveryCharge = order.Total - order.Price
	order.Subtotal = order.Price
	order.Status = StatusPreparing
	order.Date = time.Now().UTC().Format("2006-01-02")
	return order, nil
}

// parseAmount parses a currency amount like "800BDT", "800 BDT", or "800",
// truncating any fractional part to integer minor units.
func parseAmount(raw, currency string) (int64, error) {
	s := strings.TrimSpace(raw)
	if currency != "" {
		if idx := strings.Index(s, currency); idx >= 0 {
			s = s[:idx]
		}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty amount")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return int64(f), nil
}
