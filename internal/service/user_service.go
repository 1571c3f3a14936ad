package service

import (
	"fmt"

	"github.com/sykell/product-scraper/internal/db"
	"gorm.io/gorm"
)

// CreateUser creates a new reviewer account. password must already be hashed.
func CreateUser(dbConn *gorm.DB, username, password string) (*db.User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password cannot be empty")
	}

	user := db.User{
		Username: username,
		Password: password,
	}

	if err := dbConn.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username
func GetUserByUsername(dbConn *gorm.DB, username string) (*db.User, error) {
	var user db.User
	err := dbConn.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes a user by username
func DeleteUser(dbConn *gorm.DB, username string) error {
	return dbConn.Where("username = ?", username).Delete(&db.User{}).Error
}
