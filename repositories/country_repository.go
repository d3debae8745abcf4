// repositories/country_repository.go
package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/devzayn/otpbazaar_backend/config"
	"github.com/devzayn/otpbazaar_backend/models"
)

type CountryRepository struct {
	collection *mongo.Collection
}

func NewCountryRepository(db *mongo.Client) *CountryRepository {
	return &CountryRepository{
		collection: config.GetCollection(db, "countries"),
	}
}

// GetActiveCountries returns the catalog entries admins can provision for,
// sorted by name
func (r *CountryRepository) GetActiveCountries(ctx context.Context) ([]models.Country, error) {
	filter := bson.M{"status": "active"}
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var countries []models.Country
	if err := cursor.All(ctx, &countries); err != nil {
		return nil, err
	}
	return countries, nil
}

// GetCountryByName looks up a single catalog entry. Returns
// mongo.ErrNoDocuments when the name is unknown.
func (r *CountryRepository) GetCountryByName(ctx context.Context, name string) (*models.Country, error) {
	var country models.Country
	err := r.collection.FindOne(ctx, bson.M{"name": name}).Decode(&country)
	if err != nil {
		return nil, err
	}
	return &country, nil
}

// UpsertCountry creates or updates a catalog entry
func (r *CountryRepository) UpsertCountry(ctx context.Context, name string, price float64, status string) error {
	filter := bson.M{"name": name}
	update := bson.M{
		"$set": bson.M{
			"price":     price,
			"status":    status,
			"updatedAt": time.Now(),
		},
		"$setOnInsert": bson.M{
			"name":      name,
			"createdAt": time.Now(),
		},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}
