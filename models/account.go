// models/account.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Account statuses
const (
	AccountStatusActive = "active"
	AccountStatusSold   = "sold"
	AccountStatusDead   = "dead"
)

// Account is a verified messaging account held in stock. SessionString is the
// exported durable credential; it never leaves the backend in JSON responses.
type Account struct {
	ID              primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Country         string             `json:"country" bson:"country"`
	Phone           string             `json:"phone" bson:"phone"`
	SessionString   string             `json:"-" bson:"session_string"`
	Has2FA          bool               `json:"has2fa" bson:"has_2fa"`
	TwoStepPassword string             `json:"-" bson:"two_step_password,omitempty"`
	Status          string             `json:"status" bson:"status"`
	Used            bool               `json:"used" bson:"used"`
	CreatedAt       time.Time          `json:"createdAt" bson:"created_at"`
	CreatedBy       int64              `json:"createdBy" bson:"created_by"`
}
