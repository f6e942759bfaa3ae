package data

import (
	"context"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/fluffle-tools/gateway/src/gateway/types"
)

func MustMySQL(dsn string) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	return db
}

// Users is the gorm-backed lookup the session guard verifies
// identities against.
type Users struct {
	DB *gorm.DB
}

func (u Users) FindUser(ctx context.Context, id string) (*types.User, error) {
	var user types.User
	if err := u.DB.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
