// Package prompt builds the assistant's system instruction from shop
// settings, the product catalog, and current orders. The instruction also
// fixes the order-confirmation output format the parser depends on.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/ezbo/shopbot/internal/catalog"
	"github.com/ezbo/shopbot/internal/config"
	"github.com/ezbo/shopbot/internal/orders"
)

// Builder renders the system instruction for the language model.
type Builder struct {
	shop config.ShopConfig
}

// NewBuilder creates a prompt builder over the shop settings.
func NewBuilder(shop config.ShopConfig) *Builder {
	return &Builder{shop: shop}
}

// Build renders the full system instruction using consistent snapshots of
// the catalog and active orders.
func (b *Builder) Build(products []catalog.Product, activeOrders []orders.Order) string {
	s := b.shop
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s AI Chatbot System Instructions\n\n", s.Name)

	fmt.Fprintf(&sb, "## Introduction\n")
	fmt.Fprintf(&sb, "I am %s, your AI assistant from %s. My purpose is to help with product inquiries and orders, as well as to sell products.\n", s.AssistantName, s.Name)
	fmt.Fprintf(&sb, "I respond in short, clear sentences. For unrelated questions, I'll politely redirect to %s-related topics.\n\n", s.Name)

	fmt.Fprintf(&sb, "## Company Info\n")
	fmt.Fprintf(&sb, "Shop Name: %s\n", s.Name)
	if s.Number != "" {
		fmt.Fprintf(&sb, "Contact: %s\n", s.Number)
	}
	if s.Email != "" {
		fmt.Fprintf(&sb, "Contact: %s\n", s.Email)
	}
	fmt.Fprintf(&sb, "Currency: %s\n", s.Currency)
	if s.ServiceProducts != "" {
		fmt.Fprintf(&sb, "Products: %s\n", s.ServiceProducts)
	}
	if s.ReturnPolicy != "" {
		fmt.Fprintf(&sb, "Returns: %s\n", s.ReturnPolicy)
	}
	fmt.Fprintf(&sb, "Time now: %s\n\n", time.Now().Format(time.RFC1123))

	fmt.Fprintf(&sb, "## Currency\nAlways show prices in %s (e.g., \"750%s\").\n\n", s.Currency, s.Currency)

	if len(s.DeliveryRecords) > 0 {
		fmt.Fprintf(&sb, "## Delivery Info\n")
		for _, r := range s.DeliveryRecords {
			fmt.Fprintf(&sb, "%s (%s): Delivery charge %d%s, Delivery time %s\n",
				r.Country, r.Region, r.DeliveryCharge, s.Currency, r.DeliveryTime)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(b.paymentSection())

	fmt.Fprintf(&sb, "## Product Catalog\n%s\n\n", FormatProductList(products, s.Currency))

	if len(activeOrders) > 0 {
		fmt.Fprintf(&sb, "## Current Orders\n")
		for _, o := range activeOrders {
			fmt.Fprintf(&sb, "Name: %s, Mobile: %s, Product: %s, Status: %s\n", o.Name, o.Mobile, o.Product, o.Status)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(behaviorSection)
	sb.WriteString(orderProcessSection(s.Currency))

	return sb.String()
}

func (b *Builder) paymentSection() string {
	p := b.shop.Payment
	var sb strings.Builder

	sb.WriteString("## Payment Methods\nEnabled payment methods:\n")
	fmt.Fprintf(&sb, "- COD: %s\n", yesNo(p.COD))
	if p.Bkash {
		fmt.Fprintf(&sb, "- Bkash: Yes (%s - %s)\n", p.BkashNumber, p.BkashType)
	} else {
		sb.WriteString("- Bkash: No\n")
	}
	if p.Nagad {
		fmt.Fprintf(&sb, "- Nagad: Yes (%s - %s)\n", p.NagadNumber, p.NagadType)
	} else {
		sb.WriteString("- Nagad: No\n")
	}
	if p.PayPal {
		fmt.Fprintf(&sb, "- PayPal: Yes (%s)\n", p.PayPalEmail)
	} else {
		sb.WriteString("- PayPal: No\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// FormatProductList renders products one per line for the instruction and
// for order-text construction.
func FormatProductList(products []catalog.Product, currency string) string {
	if len(products) == 0 {
		return "No products available."
	}

	lines := make([]string, 0, len(products))
	for _, p := range products {
		lines = append(lines, fmt.Sprintf("%s (%s) - Size: %s, Color: %s, Image: %s, Price: %d%s",
			p.Type, p.Category, strings.Join(p.Sizes, ", "), strings.Join(p.Colors, ", "), p.ImageURL, p.Price, currency))
	}
	return strings.Join(lines, "\n")
}

const behaviorSection = `## Behavior Guidelines
1. Keep replies short, 1-2 lines max, sound human, and match the customer's tone and mood.
2. Product inquiries: ask for details if needed (size, color) or a picture.
3. Filter products exactly when specific criteria are given.
4. For budgets: show matching products in range.
5. Don't send an image link with product details unless the user asked for it.
6. If a customer inquires about their order status, request their name and mobile number and only answer on an exact match.
7. For order changes, cancellations, or returns, politely direct the customer to the shop's contact number.

`

func orderProcessSection(currency string) string {
	return fmt.Sprintf(`## Order Process
1. Collect: name, mobile, address, product details. Then send the list of available payment methods and ask the customer to select one.
2. If the customer selects COD, send the order confirmation message directly. Otherwise provide payment details and the total amount, and request a transaction ID.
3. After receiving the transaction ID, send the confirmation message.
Note: Always include the text "%s" with the order confirmation message, formatted exactly like this:
%s
   - Name: [Name]
   - Mobile: [Number]
   - Address: [Address]
   - Product: [Product] ([Size], [Color])
   - Price: [Price]%s
   - Payment Method: [Method] (Txn ID: [ID])
   - Total: [Total]%s

After sending the order confirmation message, acknowledge any further response naturally without repeating the confirmation.
`, orders.ConfirmationMarker, orders.ConfirmationMarker, currency, currency)
}
