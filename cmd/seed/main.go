package main

import (
	"errors"
	"flag"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/sykell/product-scraper/internal/db"
	"github.com/sykell/product-scraper/internal/logging"
	"github.com/sykell/product-scraper/internal/service"
)

// SeedConfig holds seed configuration
type SeedConfig struct {
	Username string
	Password string
	Force    bool
}

// NewSeedConfig creates a new seed configuration
func NewSeedConfig() *SeedConfig {
	username := flag.String("username", "admin", "Reviewer username")
	password := flag.String("password", "adminpass", "Reviewer password")
	force := flag.Bool("force", false, "Force recreation of the reviewer account")

	flag.Parse()

	return &SeedConfig{
		Username: *username,
		Password: *password,
		Force:    *force,
	}
}

func main() {
	config := NewSeedConfig()
	logger := logging.New(logging.NewConfig())
	defer func() { _ = logger.Sync() }()

	// Validate configuration
	if config.Username == "" {
		logger.Fatal("username cannot be empty")
	}
	if len(config.Password) < 6 {
		logger.Fatal("password must be at least 6 characters long")
	}

	logger.Info("starting database seeding")

	// Initialize database connection
	dbConn, err := db.InitDB()
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	// Check if the reviewer already exists
	existing, err := service.GetUserByUsername(dbConn, config.Username)
	switch {
	case err == nil:
		if !config.Force {
			logger.Info("reviewer already exists, use -force to recreate", zap.String("username", existing.Username))
			return
		}
		logger.Info("recreating reviewer", zap.String("username", existing.Username))
		if err := service.DeleteUser(dbConn, existing.Username); err != nil {
			logger.Fatal("failed to delete existing reviewer", zap.Error(err))
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		logger.Fatal("database error checking existing reviewer", zap.Error(err))
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(config.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal("failed to hash password", zap.Error(err))
	}

	user, err := service.CreateUser(dbConn, config.Username, string(hashedPassword))
	if err != nil {
		logger.Fatal("failed to create reviewer", zap.Error(err))
	}

	logger.Info("reviewer created", zap.String("username", user.Username), zap.Uint("user_id", user.ID))
}
