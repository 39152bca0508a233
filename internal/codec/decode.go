package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"ordersplit/internal/model"
)

// Decode parses an <orders> document into an order batch.
func (c *Codec) Decode(data []byte) (*model.OrderBatch, error) {
	root, err := c.parseRoot(data, elemOrders)
	if err != nil {
		return nil, err
	}
	batch := &model.OrderBatch{}
	for i, el := range root.SelectElements(elemOrder) {
		path := fmt.Sprintf("%s/%s[%d]", elemOrders, elemOrder, i+1)
		ord, err := decodeOrder(el, path)
		if err != nil {
			return nil, err
		}
		batch.Orders = append(batch.Orders, ord)
	}
	return batch, nil
}

// DecodeBundle parses a <products> document. The returned bundle has no
// supplier; it lives in the document name only.
func (c *Codec) DecodeBundle(data []byte) (*model.SupplierBundle, error) {
	root, err := c.parseRoot(data, elemProducts)
	if err != nil {
		return nil, err
	}
	bundle := &model.SupplierBundle{}
	for i, el := range root.SelectElements(elemProduct) {
		path := fmt.Sprintf("%s/%s[%d]", elemProducts, elemProduct, i+1)
		p, err := decodeProduct(el, path)
		if err != nil {
			return nil, err
		}
		bundle.Products = append(bundle.Products, p)
	}
	return bundle, nil
}

func (c *Codec) parseRoot(data []byte, want string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, malformed("", "", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, malformed("", "", errors.New("no root element"))
	}
	name := root.FullTag()
	if name != want {
		if !c.known(name) {
			return nil, decodeErr(ErrUnresolvableType, name, name, "no mapping for element")
		}
		return nil, decodeErr(ErrUnknownElement, name, name, fmt.Sprintf("expected <%s> as document root", want))
	}
	if err := c.validate(root, name); err != nil {
		return nil, err
	}
	return root, nil
}

// validate walks the tree checking every element against the registry.
func (c *Codec) validate(el *etree.Element, path string) error {
	spec := c.elements[el.FullTag()]
	seen := make(map[string]int)
	for _, child := range el.ChildElements() {
		name := child.FullTag()
		seen[name]++
		childPath := fmt.Sprintf("%s/%s[%d]", path, name, seen[name])
		if !c.known(name) {
			return decodeErr(ErrUnresolvableType, name, childPath, "no mapping for element")
		}
		repeatable, allowed := spec.children[name]
		if !allowed {
			return decodeErr(ErrUnknownElement, name, childPath,
				fmt.Sprintf("not permitted inside <%s>", el.FullTag()))
		}
		if seen[name] > 1 && !repeatable {
			return decodeErr(ErrUnknownElement, name, childPath,
				fmt.Sprintf("may appear once inside <%s>", el.FullTag()))
		}
		if err := c.validate(child, childPath); err != nil {
			return err
		}
	}
	return nil
}

func decodeOrder(el *etree.Element, path string) (*model.Order, error) {
	ord := &model.Order{}
	rawID := el.SelectAttr(attrID)
	if rawID == nil {
		return nil, malformed(elemOrder, path, errors.New("missing ID attribute"))
	}
	id, err := strconv.Atoi(strings.TrimSpace(rawID.Value))
	if err != nil {
		return nil, malformed(elemOrder, path, fmt.Errorf("ID attribute: %w", err))
	}
	ord.ID = id
	if created := el.SelectAttr(attrCreated); created != nil {
		t, err := parseCreated(strings.TrimSpace(created.Value))
		if err != nil {
			return nil, malformed(elemOrder, path, fmt.Errorf("created attribute: %w", err))
		}
		ord.Created = t
	}
	for i, pe := range el.SelectElements(elemProduct) {
		p, err := decodeProduct(pe, fmt.Sprintf("%s/%s[%d]", path, elemProduct, i+1))
		if err != nil {
			return nil, err
		}
		ord.Products = append(ord.Products, p)
	}
	return ord, nil
}

func decodeProduct(el *etree.Element, path string) (*model.Product, error) {
	p := &model.Product{
		Description: text(el.SelectElement(elemDescription)),
		GTIN:        text(el.SelectElement(elemGTIN)),
		Supplier:    text(el.SelectElement(elemSupplier)),
	}
	if pe := el.SelectElement(elemPrice); pe != nil {
		price, err := decodePrice(pe, path+"/"+elemPrice)
		if err != nil {
			return nil, err
		}
		p.Price = price
	}
	if oe := el.SelectElement(elemOrderID); oe != nil {
		id, err := strconv.Atoi(trimmed(oe))
		if err != nil {
			return nil, malformed(elemOrderID, path+"/"+elemOrderID, err)
		}
		p.OrderID = &id
	}
	return p, nil
}

func decodePrice(el *etree.Element, path string) (*model.Price, error) {
	amount, err := decimal.NewFromString(trimmed(el))
	if err != nil {
		return nil, malformed(elemPrice, path, err)
	}
	return &model.Price{
		Currency: el.SelectAttrValue(attrCurrency, ""),
		Amount:   amount,
	}, nil
}

// text returns the character data of el as written; surrounding whitespace is
// part of the value.
func text(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return el.Text()
}

// trimmed is text for numeric fields, where padding carries no meaning.
func trimmed(el *etree.Element) string {
	return strings.TrimSpace(text(el))
}
