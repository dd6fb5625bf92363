package domain

import "time"

const DefaultMinStock = 5

// StockRecord is the ledger row for a single product.
type StockRecord struct {
	ID               int64
	ProductID        int64
	Quantity         int
	ReservedQuantity int
	MinStock         int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AvailableQuantity may be negative when reservations exceed quantity.
// Callers treat anything below the requested amount as no stock.
func (r StockRecord) AvailableQuantity() int {
	return r.Quantity - r.ReservedQuantity
}

func (r StockRecord) HasStock(requested int) bool {
	return r.AvailableQuantity() >= requested
}

func (r StockRecord) IsLowStock() bool {
	return r.Quantity <= r.MinStock
}

// ProductDescriptor carries the product attributes owned by the products service.
// Any field besides ID may be empty.
type ProductDescriptor struct {
	ID       int64  `json:"id"`
	Name     string `json:"name,omitempty"`
	SKU      string `json:"sku,omitempty"`
	Category string `json:"category,omitempty"`
}

// View is what the engine hands back to the transport layer.
type View struct {
	ID                int64             `json:"id"`
	ProductID         int64             `json:"productId"`
	Quantity          int               `json:"quantity"`
	ReservedQuantity  int               `json:"reservedQuantity"`
	AvailableQuantity int               `json:"availableQuantity"`
	MinStock          int               `json:"minStock"`
	LowStock          bool              `json:"lowStock"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	Product           ProductDescriptor `json:"product"`
}

func NewView(r StockRecord, p ProductDescriptor) View {
	return View{
		ID:                r.ID,
		ProductID:         r.ProductID,
		Quantity:          r.Quantity,
		ReservedQuantity:  r.ReservedQuantity,
		AvailableQuantity: r.AvailableQuantity(),
		MinStock:          r.MinStock,
		LowStock:          r.IsLowStock(),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		Product:           p,
	}
}
