package regroup

import "ordersplit/internal/model"

// Regroup partitions the products of a batch by supplier. Each product is
// stamped with its order ID and has its supplier cleared. Bundles come back in
// the order their supplier was first seen; products keep batch order and are
// not deduplicated.
//
// Products are moved, not copied: the batch must not be reused afterwards.
// Nil orders and products are skipped.
func Regroup(batch *model.OrderBatch) []*model.SupplierBundle {
	if batch == nil {
		return nil
	}
	var bundles []*model.SupplierBundle
	index := make(map[string]*model.SupplierBundle)
	for _, ord := range batch.Orders {
		if ord == nil {
			continue
		}
		for _, p := range ord.Products {
			if p == nil {
				continue
			}
			b, ok := index[p.Supplier]
			if !ok {
				b = &model.SupplierBundle{Supplier: p.Supplier}
				index[p.Supplier] = b
				bundles = append(bundles, b)
			}
			p.OrderID = model.IntPtr(ord.ID)
			b.Products = append(b.Products, p)
			p.Supplier = ""
		}
	}
	return bundles
}
