package domain

import "time"

// InventoryRecord is the current stock state for a single product.
// ProductID is unique and immutable after creation; Quantity never goes
// negative at any committed state.
type InventoryRecord struct {
	ProductID         string    `bson:"product_id" json:"product_id"`
	Quantity          int       `bson:"quantity" json:"quantity"`
	WarehouseLocation string    `bson:"warehouse_location" json:"warehouse_location"`
	CreatedAt         time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at" json:"updated_at"`
}

// StockMovement is one immutable entry in the audit ledger. Movements are
// appended once per successful quantity change and never updated or deleted.
// Replaying a product's movements in CreatedAt order and summing
// QuantityChange yields the record's current Quantity.
type StockMovement struct {
	ProductID      string    `bson:"product_id" json:"product_id"`
	QuantityChange int       `bson:"quantity_change" json:"quantity_change"`
	NewQuantity    int       `bson:"new_quantity" json:"new_quantity"`
	Reason         string    `bson:"reason" json:"reason"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}
