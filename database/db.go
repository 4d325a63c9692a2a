package database

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Connect opens the shared GORM handle. DATABASE_URL wins when set,
// otherwise the DSN is assembled from DB_* pieces.
func Connect() *gorm.DB {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file, using process environment")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			envOr("DB_HOST", "localhost"),
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_NAME"),
			envOr("DB_PORT", "5432"),
			envOr("DB_SSLMODE", "disable"))
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to database")
	}
	return DB
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
