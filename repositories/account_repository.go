// repositories/account_repository.go
package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/devzayn/otpbazaar_backend/config"
	"github.com/devzayn/otpbazaar_backend/models"
)

type AccountRepository struct {
	collection *mongo.Collection
}

func NewAccountRepository(db *mongo.Client) *AccountRepository {
	return &AccountRepository{
		collection: config.GetCollection(db, "accounts"),
	}
}

// SaveVerifiedAccount persists a freshly verified account into stock.
// Implements the credential store used by the bulk engine.
func (r *AccountRepository) SaveVerifiedAccount(ctx context.Context, country, phone, sessionString string, hasPassword bool, password string, createdBy int64) error {
	account := models.Account{
		Country:         country,
		Phone:           phone,
		SessionString:   sessionString,
		Has2FA:          hasPassword,
		TwoStepPassword: password,
		Status:          models.AccountStatusActive,
		Used:            false,
		CreatedAt:       time.Now(),
		CreatedBy:       createdBy,
	}

	_, err := r.collection.InsertOne(ctx, account)
	return err
}

// CountAvailable returns how many unsold, unused accounts a country has in stock
func (r *AccountRepository) CountAvailable(ctx context.Context, country string) (int64, error) {
	filter := bson.M{
		"country": country,
		"status":  models.AccountStatusActive,
		"used":    false,
	}
	return r.collection.CountDocuments(ctx, filter)
}

// StockByCountry returns available-account counts grouped by country
func (r *AccountRepository) StockByCountry(ctx context.Context) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"status": models.AccountStatusActive,
			"used":   false,
		}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":   "$country",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Country string `bson:"_id"`
		Count   int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	stock := make(map[string]int64, len(rows))
	for _, row := range rows {
		stock[row.Country] = row.Count
	}
	return stock, nil
}
