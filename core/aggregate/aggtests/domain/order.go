package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/GeorGeWzw/aggregates-go/core/aggregate"
)

type (
	// Order is the aggregate used by the integration suites: a root keyed by
	// uuid with line item entities sharing its stream.
	Order struct {
		aggregate.Base[uuid.UUID]

		Customer string      `json:"customer"`
		Placed   bool        `json:"placed"`
		Shipped  bool        `json:"shipped"`
		Items    []*LineItem `json:"items"`
	}

	LineItem struct {
		aggregate.Entity

		SKU       string `json:"sku"`
		Qty       int    `json:"qty"`
		UnitCents int64  `json:"unit_cents"`
	}
)

// === Events ===

type (
	OrderPlaced struct {
		Customer string `json:"customer"`
	}

	ItemAdded struct {
		SKU       string `json:"sku"`
		Qty       int    `json:"qty"`
		UnitCents int64  `json:"unit_cents,omitempty"`
	}

	ItemQtyAdjusted struct {
		SKU string `json:"sku"`
		Qty int    `json:"qty"`
	}

	OrderShipped struct{}
)

func (e *ItemAdded) Validate() error {
	if e.SKU == "" {
		return fmt.Errorf("sku is empty")
	}
	if e.Qty <= 0 {
		return fmt.Errorf("qty must be positive, got %d", e.Qty)
	}
	return nil
}

func (e *ItemQtyAdjusted) TargetEntityID() string { return e.SKU }

// === Routing ===

func (o *Order) GetAggType() string { return "order" }

func (o *Order) RegisterRoutes(r *aggregate.Router) {
	aggregate.On(r, func(o *Order, e *OrderPlaced) {
		o.Placed = true
		o.Customer = e.Customer
	})
	aggregate.On(r, func(o *Order, e *ItemAdded) {
		item := &LineItem{SKU: e.SKU, Qty: e.Qty, UnitCents: e.UnitCents}
		item.SetEntityID(e.SKU)
		o.Mount(item)
		o.Items = append(o.Items, item)
	})
	aggregate.On(r, func(o *Order, e *OrderShipped) { o.Shipped = true })
}

func (i *LineItem) RegisterRoutes(r *aggregate.Router) {
	aggregate.On(r, func(i *LineItem, e *ItemQtyAdjusted) { i.Qty = e.Qty })
}

// === Snapshots ===

func (o *Order) Snapshot() ([]byte, error) { return json.Marshal(o) }

func (o *Order) RestoreSnapshot(data []byte) error {
	o.Items = nil
	if err := json.Unmarshal(data, o); err != nil {
		return err
	}
	for _, item := range o.Items {
		item.SetEntityID(item.SKU)
		o.Mount(item)
	}
	return nil
}

var _ aggregate.Snapshottable = &Order{}

// === Commands ===

func (o *Order) Place(customer string) error {
	if o.Placed {
		return fmt.Errorf("order already placed")
	}
	return aggregate.Raise(o, &OrderPlaced{Customer: customer})
}

func (o *Order) AddItem(sku string, qty int, unitCents int64) error {
	if o.Item(sku) != nil {
		return fmt.Errorf("item %s already in order", sku)
	}
	return aggregate.Raise(o, &ItemAdded{SKU: sku, Qty: qty, UnitCents: unitCents})
}

func (o *Order) AdjustQty(sku string, qty int) error {
	if o.Item(sku) == nil {
		return fmt.Errorf("item %s not in order", sku)
	}
	return aggregate.Raise(o, &ItemQtyAdjusted{SKU: sku, Qty: qty})
}

func (o *Order) Ship() error {
	if !o.Placed {
		return fmt.Errorf("cannot ship an unplaced order")
	}
	return aggregate.Raise(o, &OrderShipped{})
}

// === Read ===

func (o *Order) Item(sku string) *LineItem {
	for _, item := range o.Items {
		if item.SKU == sku {
			return item
		}
	}
	return nil
}

func (o *Order) TotalCents() int64 {
	var total int64
	for _, item := range o.Items {
		total += int64(item.Qty) * item.UnitCents
	}
	return total
}

func NewOrder(id uuid.UUID) *Order {
	o := &Order{}
	o.SetID(id)
	return o
}
