package database

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/photovault/photovault/app/models"
	"github.com/photovault/photovault/internal/pkg/env"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// DB is the shared connection opened by SetupDatabase.
var DB *gorm.DB

// Config describes a database connection.
type Config struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int
}

// ConfigFromEnv reads DB_* variables. DB_DRIVER defaults to postgres.
func ConfigFromEnv() Config {
	cfg := Config{
		Driver:   strings.ToLower(strings.TrimSpace(env.GetEnv("DB_DRIVER", DriverPostgres))),
		Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
		User:     env.GetEnv("DB_USER", ""),
		Password: env.GetEnv("DB_PASSWORD", ""),
		Name:     env.GetEnv("DB_NAME", ""),
		SSLMode:  env.GetEnv("DB_SSLMODE", "disable"),
		MaxConns: env.GetEnvInt("DB_MAX_CONNS", 20),
	}
	defaultPort := "5432"
	if cfg.Driver == DriverMySQL {
		defaultPort = "3306"
	}
	cfg.Port = env.GetEnv("DB_PORT", defaultPort)
	return cfg
}

// DSN builds the driver-specific data source name.
func (c Config) DSN() (string, error) {
	switch c.Driver {
	case DriverMySQL:
		// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.Name), nil
	case DriverPostgres:
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode), nil
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER %q", c.Driver)
	}
}

// MigrateURL is the golang-migrate database URL for the same connection.
func (c Config) MigrateURL() (string, error) {
	switch c.Driver {
	case DriverMySQL:
		return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
			c.User, c.Password, c.Host, c.Port, c.Name), nil
	case DriverPostgres:
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode), nil
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER %q", c.Driver)
	}
}

func dialector(c Config) (gorm.Dialector, error) {
	dsn, err := c.DSN()
	if err != nil {
		return nil, err
	}
	if c.Driver == DriverMySQL {
		return mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), nil
	}
	return postgres.Open(dsn), nil
}

// SetupDatabase connects with retries and auto-migrates the billing tables.
// It panics when no connection can be made.
func SetupDatabase() {
	db, err := Open(ConfigFromEnv())
	if err != nil {
		panic(err)
	}
	if env.GetEnvBool("DB_AUTO_MIGRATE", true) {
		if err := AutoMigrate(db); err != nil {
			panic(err)
		}
	}
	DB = db
}

// Open connects to the configured database, retrying while it starts up.
func Open(cfg Config) (*gorm.DB, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	var db *gorm.DB
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(d, &gorm.Config{})
		if err == nil {
			sqlDB, dbErr := db.DB()
			if dbErr != nil {
				return nil, dbErr
			}
			if cfg.MaxConns > 0 {
				sqlDB.SetMaxOpenConns(cfg.MaxConns)
				sqlDB.SetMaxIdleConns(cfg.MaxConns / 2)
			}
			sqlDB.SetConnMaxLifetime(time.Hour)
			log.Printf("[Database] Connected to %s at %s:%s/%s", cfg.Driver, cfg.Host, cfg.Port, cfg.Name)
			return db, nil
		}

		log.Printf("[Database] Failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("[Database] Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}

// AutoMigrate creates or updates the billing tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.UserProfile{},
		&models.Client{},
		&models.Photographer{},
		&models.PhotoGallery{},
		&models.Subscription{},
		&models.GalleryPaymentTransaction{},
		&models.BillingWebhookEvent{},
	)
}

// GetDB returns the shared connection.
func GetDB() *gorm.DB {
	return DB
}
