// Package codec maps the order model to and from its XML document form.
//
// Input documents are rooted at <orders>; supplier documents at <products>.
// Element names are resolved through a registry filled in New, each entry
// listing the child elements permitted inside it.
package codec

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	elemOrders      = "orders"
	elemOrder       = "order"
	elemProducts    = "products"
	elemProduct     = "product"
	elemDescription = "description"
	elemGTIN        = "gtin"
	elemPrice       = "price"
	elemSupplier    = "supplier"
	elemOrderID     = "orderid"

	attrCreated  = "created"
	attrID       = "ID"
	attrCurrency = "currency"

	declaration = `version="1.0" encoding="UTF-8"`
)

// createdLayout renders order timestamps as a local date-time without zone.
// Fractional seconds are written only when present.
const createdLayout = "2006-01-02T15:04:05.999999999"

var createdParseLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

type childRule struct {
	name       string
	repeatable bool
}

func many(name string) childRule { return childRule{name: name, repeatable: true} }
func one(name string) childRule  { return childRule{name: name} }

// elementSpec lists the children permitted inside an element; the value
// tells whether the child may repeat.
type elementSpec struct {
	children map[string]bool
}

// Codec encodes and decodes order and supplier documents. It is safe for
// concurrent use once built.
type Codec struct {
	elements map[string]elementSpec
}

func New() *Codec {
	c := &Codec{elements: make(map[string]elementSpec)}
	c.register(elemOrders, many(elemOrder))
	c.register(elemOrder, many(elemProduct))
	c.register(elemProducts, many(elemProduct))
	c.register(elemProduct,
		one(elemDescription),
		one(elemGTIN),
		one(elemPrice),
		one(elemSupplier),
		one(elemOrderID),
	)
	c.register(elemPrice)
	c.register(elemDescription)
	c.register(elemGTIN)
	c.register(elemSupplier)
	c.register(elemOrderID)
	return c
}

func (c *Codec) register(name string, children ...childRule) {
	spec := elementSpec{children: make(map[string]bool, len(children))}
	for _, ch := range children {
		spec.children[ch.name] = ch.repeatable
	}
	c.elements[name] = spec
}

func (c *Codec) known(name string) bool {
	_, ok := c.elements[name]
	return ok
}

func formatCreated(t time.Time) string {
	return t.UTC().Format(createdLayout)
}

func parseCreated(s string) (time.Time, error) {
	var err error
	for _, layout := range createdParseLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// formatAmount keeps at least one fractional digit, e.g. 399.0 and 25.5.
func formatAmount(d decimal.Decimal) string {
	places := int32(1)
	if e := -d.Exponent(); e > places {
		places = e
	}
	return d.StringFixed(places)
}
