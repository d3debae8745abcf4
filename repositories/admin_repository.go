// repositories/admin_repository.go
package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/devzayn/otpbazaar_backend/config"
	"github.com/devzayn/otpbazaar_backend/models"
)

type AdminRepository struct {
	collection *mongo.Collection
}

func NewAdminRepository(db *mongo.Client) *AdminRepository {
	return &AdminRepository{
		collection: config.GetCollection(db, "admins"),
	}
}

// GetAdminByEmail looks up an admin for login. Returns mongo.ErrNoDocuments
// when no admin has that email.
func (r *AdminRepository) GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	var admin models.Admin
	err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&admin)
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

// GetAdminByTelegramID resolves a bot identity to an admin. Bot commands are
// only honoured for admins registered here.
func (r *AdminRepository) GetAdminByTelegramID(ctx context.Context, telegramID int64) (*models.Admin, error) {
	var admin models.Admin
	err := r.collection.FindOne(ctx, bson.M{"telegramId": telegramID}).Decode(&admin)
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

// CreateAdmin inserts a new admin. Password must already be hashed.
func (r *AdminRepository) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	admin.CreatedAt = time.Now()
	admin.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, admin)
	return err
}
