package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventInventoryChanged EventType = "INVENTORY_CHANGED"
	EventLowStockAlert    EventType = "LOW_STOCK_ALERT"
)

type ChangeReason string

const (
	ReasonStockUpdate        ChangeReason = "STOCK_UPDATE"
	ReasonQuantityAdjustment ChangeReason = "QUANTITY_ADJUSTMENT"
	ReasonPurchase           ChangeReason = "PURCHASE"
	ReasonDeleted            ChangeReason = "DELETED"
	ReasonRestock            ChangeReason = "RESTOCK_REQUIRED"
)

// Event is the record handed to an EventPublisher. Optional quantities are
// pointers so absent values serialize as missing rather than zero.
type Event struct {
	ID               string       `json:"id"`
	Type             EventType    `json:"type"`
	ProductID        int64        `json:"productId"`
	PreviousQuantity *int         `json:"previousQuantity,omitempty"`
	NewQuantity      *int         `json:"newQuantity,omitempty"`
	CurrentStock     *int         `json:"currentStock,omitempty"`
	MinStock         *int         `json:"minStock,omitempty"`
	Reason           ChangeReason `json:"reason"`
	Timestamp        time.Time    `json:"timestamp"`
}

func NewInventoryChanged(productID int64, previous, current int, reason ChangeReason) Event {
	return Event{
		ID:               uuid.NewString(),
		Type:             EventInventoryChanged,
		ProductID:        productID,
		PreviousQuantity: &previous,
		NewQuantity:      &current,
		Reason:           reason,
		Timestamp:        time.Now().UTC(),
	}
}

func NewLowStockAlert(productID int64, current, minStock int) Event {
	return Event{
		ID:           uuid.NewString(),
		Type:         EventLowStockAlert,
		ProductID:    productID,
		CurrentStock: &current,
		MinStock:     &minStock,
		Reason:       ReasonRestock,
		Timestamp:    time.Now().UTC(),
	}
}

// Delta is newQuantity - previousQuantity, zero for alerts.
func (e Event) Delta() int {
	if e.PreviousQuantity == nil || e.NewQuantity == nil {
		return 0
	}
	return *e.NewQuantity - *e.PreviousQuantity
}
