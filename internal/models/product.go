package models

import (
	"github.com/google/uuid"
)

// Category groups products on the storefront.
type Category struct {
	BaseModel
	Name string `gorm:"uniqueIndex" json:"name"`
}

// Product is a grocery item. Stock is mutated only by order creation
// (decrement), gateway payment confirmation (decrement) and order
// cancellation (increment), never by direct client request.
type Product struct {
	BaseModel
	Name       string    `json:"name"`
	CategoryID uuid.UUID `gorm:"type:uuid;index" json:"category_id"`
	Category   *Category `json:"category,omitempty"`
	Price      float64   `json:"price"`
	Stock      int       `json:"stock"`
	ImageURL   string    `json:"image_url"`
}
