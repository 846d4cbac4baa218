package store

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"market_terminal/internal/models"
)

type OrderState struct {
	Orders []models.Order // newest first
}

type Orders struct {
	c   *cell[OrderState]
	now func() time.Time
}

func NewOrders(log *zap.Logger) *Orders {
	return &Orders{c: newCell("orders", &OrderState{}, log), now: time.Now}
}

func (o *Orders) State() *OrderState { return o.c.load() }

func (o *Orders) Order(id string) (models.Order, bool) {
	for _, ord := range o.c.load().Orders {
		if ord.ID == id {
			return ord, true
		}
	}
	return models.Order{}, false
}

// AddOrder prepends an order. Missing id, status and creation time are filled in.
func (o *Orders) AddOrder(ord models.Order) models.Order {
	if ord.ID == "" {
		ord.ID = uuid.NewString()
	}
	if ord.Status == "" {
		ord.Status = models.OrderPending
	}
	if ord.CreatedAt == 0 {
		ord.CreatedAt = o.now().UnixMilli()
	}
	o.c.update(func(cur *OrderState) *OrderState {
		list := make([]models.Order, 0, len(cur.Orders)+1)
		list = append(list, ord)
		list = append(list, cur.Orders...)
		return &OrderState{Orders: list}
	})
	return ord
}

// UpdateOrder patches the order with the given id in place. Unknown ids are ignored.
func (o *Orders) UpdateOrder(id string, patch models.OrderPatch) bool {
	return o.c.update(func(cur *OrderState) *OrderState {
		idx := indexOrder(cur.Orders, id)
		if idx < 0 {
			return nil
		}
		list := make([]models.Order, len(cur.Orders))
		copy(list, cur.Orders)
		patch.Apply(&list[idx])
		return &OrderState{Orders: list}
	})
}

// UpsertOrder is used by the router: known ids are patched, new ones prepended.
func (o *Orders) UpsertOrder(ord models.Order) {
	if ord.ID != "" && o.UpdateOrder(ord.ID, models.PatchFrom(ord)) {
		return
	}
	o.AddOrder(ord)
}

func indexOrder(list []models.Order, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func (o *Orders) Subscribe(fn func(*OrderState)) func() {
	return o.c.subscribe(fn)
}
