package codec

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/beevik/etree"

	"ordersplit/internal/model"
)

// EncodeBatch renders a batch as a compact <orders> document.
func (c *Codec) EncodeBatch(b *model.OrderBatch) (string, error) {
	if b == nil {
		return "", ErrNilValue
	}
	doc := newDocument()
	root := doc.CreateElement(elemOrders)
	for i, o := range b.Orders {
		if o == nil {
			return "", fmt.Errorf("%w: order %d", ErrNilValue, i+1)
		}
		oe := root.CreateElement(elemOrder)
		if !o.Created.IsZero() {
			oe.CreateAttr(attrCreated, formatCreated(o.Created))
		}
		oe.CreateAttr(attrID, strconv.Itoa(o.ID))
		for j, p := range o.Products {
			if err := encodeProduct(oe, p); err != nil {
				return "", fmt.Errorf("order %d product %d: %w", i+1, j+1, err)
			}
		}
	}
	return doc.WriteToString()
}

// EncodeBundle renders a bundle as a compact <products> document. The
// supplier is not part of the document.
func (c *Codec) EncodeBundle(b *model.SupplierBundle) (string, error) {
	if b == nil {
		return "", ErrNilValue
	}
	doc := newDocument()
	root := doc.CreateElement(elemProducts)
	for i, p := range b.Products {
		if err := encodeProduct(root, p); err != nil {
			return "", fmt.Errorf("product %d: %w", i+1, err)
		}
	}
	return doc.WriteToString()
}

// newDocument starts a document whose text and attribute values are written
// with character references for CR, so they read back unchanged.
func newDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.WriteSettings.CanonicalText = true
	doc.WriteSettings.CanonicalAttrVal = true
	doc.CreateProcInst("xml", declaration)
	return doc
}

func encodeProduct(parent *etree.Element, p *model.Product) error {
	if p == nil {
		return ErrNilValue
	}
	pe := parent.CreateElement(elemProduct)
	if err := textElement(pe, elemDescription, p.Description); err != nil {
		return err
	}
	if err := textElement(pe, elemGTIN, p.GTIN); err != nil {
		return err
	}
	if p.Price != nil {
		price := pe.CreateElement(elemPrice)
		if p.Price.Currency != "" {
			if err := checkText(attrCurrency, p.Price.Currency); err != nil {
				return err
			}
			price.CreateAttr(attrCurrency, p.Price.Currency)
		}
		price.SetText(formatAmount(p.Price.Amount))
	}
	if err := textElement(pe, elemSupplier, p.Supplier); err != nil {
		return err
	}
	if p.OrderID != nil {
		pe.CreateElement(elemOrderID).SetText(strconv.Itoa(*p.OrderID))
	}
	return nil
}

// textElement adds <name>value</name> unless value is empty.
func textElement(parent *etree.Element, name, value string) error {
	if value == "" {
		return nil
	}
	if err := checkText(name, value); err != nil {
		return err
	}
	parent.CreateElement(name).SetText(value)
	return nil
}

// checkText rejects values a conforming parser could not read back as written.
func checkText(field, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidText, field)
	}
	for i, r := range s {
		if !isXMLChar(r) {
			return fmt.Errorf("%w: %s has character %U at byte %d", ErrInvalidText, field, r, i)
		}
	}
	return nil
}

// isXMLChar reports whether r is in the XML 1.0 Char production.
func isXMLChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF
}
