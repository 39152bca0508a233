package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"ordersplit/internal/codec"
	"ordersplit/internal/model"
)

type catalogItem struct {
	description string
	gtin        string
	supplier    string
	currency    string
	cents       int64
}

var catalog = []catalogItem{
	{"Sony Bravia XR 55", "00027242918545", "Sony", "USD", 299999},
	{"Sony WH-1000XM5 Wireless Headphones", "00027242923249", "Sony", "EUR", 39900},
	{"Apple iPhone 14 Pro 128GB", "00194253408123", "Apple", "USD", 99900},
	{"Apple AirPods Pro", "00194253397694", "Apple", "USD", 24950},
	{"Panasonic Lumix DC-S5", "00885170341823", "Panasonic", "EUR", 179950},
	{"LG OLED evo C3", "08806084075443", "LG", "EUR", 149900},
}

func main() {
	var (
		count  int
		first  int
		orders int
		dir    string
		prefix string
		ext    string
	)
	flag.IntVar(&count, "count", 1, "number of input files to generate")
	flag.IntVar(&first, "first", 1, "sequence number of the first file")
	flag.IntVar(&orders, "orders", 3, "orders per file")
	flag.StringVar(&dir, "dir", "./in", "directory the files are dropped into")
	flag.StringVar(&prefix, "prefix", "orders_", "file name prefix")
	flag.StringVar(&ext, "ext", ".xml", "file name extension")
	flag.Parse()

	if err := generate(count, first, orders, dir, prefix, ext); err != nil {
		log.Fatalf("generation failed: %v", err)
	}
}

func generate(count, first, orders int, dir, prefix, ext string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	c := codec.New()
	created := time.Now().UTC().Truncate(time.Minute)
	nextID := 1
	for i := 0; i < count; i++ {
		batch := &model.OrderBatch{}
		for j := 0; j < orders; j++ {
			batch.Orders = append(batch.Orders, randomOrder(nextID, created.Add(time.Duration(nextID)*time.Minute)))
			nextID++
		}
		text, err := c.EncodeBatch(batch)
		if err != nil {
			return fmt.Errorf("encode file %d: %w", i+1, err)
		}
		name := fmt.Sprintf("%s%d%s", prefix, first+i, ext)
		if err := drop(dir, name, text); err != nil {
			return err
		}
		log.Printf("generated %s with %d products", name, batch.ProductCount())
	}
	return nil
}

func randomOrder(id int, created time.Time) *model.Order {
	ord := &model.Order{ID: id, Created: created}
	n := 1 + rand.Intn(4)
	for k := 0; k < n; k++ {
		item := catalog[rand.Intn(len(catalog))]
		ord.Products = append(ord.Products, &model.Product{
			Description: item.description,
			GTIN:        item.gtin,
			Price:       &model.Price{Currency: item.currency, Amount: decimal.New(item.cents, -2)},
			Supplier:    item.supplier,
		})
	}
	return ord
}

// drop writes the file next to its destination and renames it in, so a
// watcher never reads a half-written document.
func drop(dir, name, text string) error {
	tmp := filepath.Join(dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
