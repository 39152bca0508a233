package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Price is a currency code and a decimal amount.
type Price struct {
	Currency string
	Amount   decimal.Decimal
}

// Equal reports whether both prices carry the same currency and amount.
func (p *Price) Equal(o *Price) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.Currency == o.Currency && p.Amount.Equal(o.Amount)
}

// Product is one line item of an order. Empty strings and nil pointers are
// treated as absent fields.
type Product struct {
	Description string
	GTIN        string
	Price       *Price
	Supplier    string
	OrderID     *int
}

func (p *Product) Equal(o *Product) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.Description != o.Description || p.GTIN != o.GTIN || p.Supplier != o.Supplier {
		return false
	}
	if !p.Price.Equal(o.Price) {
		return false
	}
	if (p.OrderID == nil) != (o.OrderID == nil) {
		return false
	}
	return p.OrderID == nil || *p.OrderID == *o.OrderID
}

// Order is a purchase order. ID is unique within a batch only.
type Order struct {
	Created  time.Time
	ID       int
	Products []*Product
}

func (ord *Order) Equal(o *Order) bool {
	if ord == nil || o == nil {
		return ord == o
	}
	if ord.ID != o.ID || !ord.Created.Equal(o.Created) || len(ord.Products) != len(o.Products) {
		return false
	}
	for i := range ord.Products {
		if !ord.Products[i].Equal(o.Products[i]) {
			return false
		}
	}
	return true
}

// OrderBatch is the content of one input document.
type OrderBatch struct {
	Orders []*Order
}

func (b *OrderBatch) Equal(o *OrderBatch) bool {
	if b == nil || o == nil {
		return b == o
	}
	if len(b.Orders) != len(o.Orders) {
		return false
	}
	for i := range b.Orders {
		if !b.Orders[i].Equal(o.Orders[i]) {
			return false
		}
	}
	return true
}

// ProductCount returns the number of products across all orders.
func (b *OrderBatch) ProductCount() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, o := range b.Orders {
		n += len(o.Products)
	}
	return n
}

// SupplierBundle holds the products destined for one supplier document.
// Products in a bundle have OrderID set and Supplier cleared.
type SupplierBundle struct {
	Supplier string
	Products []*Product
}

// IntPtr returns a pointer to v. Split out for callers building products by hand.
func IntPtr(v int) *int { return &v }
