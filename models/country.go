// models/country.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Country is an inventory category from the catalog. Names are opaque labels
// chosen by admins ("India", "USA Virtual", ...).
type Country struct {
	ID        primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Name      string             `json:"name" bson:"name"`
	Price     float64            `json:"price" bson:"price"`
	Status    string             `json:"status" bson:"status"` // "active", "disabled"
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// UpsertCountryRequest creates or updates a catalog entry
type UpsertCountryRequest struct {
	Name   string  `json:"name" validate:"required"`
	Price  float64 `json:"price" validate:"gte=0"`
	Status string  `json:"status" validate:"required,oneof=active disabled"`
}
