package models

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType: LO limit, ATO/ATC opening/closing auction, MP market price.
type OrderType string

const (
	OrderLO  OrderType = "LO"
	OrderATO OrderType = "ATO"
	OrderATC OrderType = "ATC"
	OrderMP  OrderType = "MP"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderMatched   OrderStatus = "MATCHED"
	OrderPartial   OrderStatus = "PARTIAL"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRejected  OrderStatus = "REJECTED"
)

type Order struct {
	ID        string      `json:"id"`
	Symbol    string      `json:"symbol"`
	Side      OrderSide   `json:"side"`
	Type      OrderType   `json:"type"`
	Price     float64     `json:"price"`
	Quantity  int64       `json:"quantity"`
	FilledQty int64       `json:"filledQty"`
	Status    OrderStatus `json:"status"`
	CreatedAt int64       `json:"createdAt"` // unix ms
}

// OrderPatch carries the fields to change in place; nil means keep.
type OrderPatch struct {
	Price     *float64
	Quantity  *int64
	FilledQty *int64
	Status    *OrderStatus
}

func (p OrderPatch) Apply(o *Order) {
	if p.Price != nil {
		o.Price = *p.Price
	}
	if p.Quantity != nil {
		o.Quantity = *p.Quantity
	}
	if p.FilledQty != nil {
		o.FilledQty = *p.FilledQty
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
}

// PatchFrom builds a patch that turns the current order into next.
// Identity fields (id, symbol, side, type, createdAt) are never patched.
func PatchFrom(next Order) OrderPatch {
	return OrderPatch{
		Price:     &next.Price,
		Quantity:  &next.Quantity,
		FilledQty: &next.FilledQty,
		Status:    &next.Status,
	}
}
