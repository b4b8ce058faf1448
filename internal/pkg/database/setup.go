package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ManuelReschke/CertLedger/app/models"
	"github.com/ManuelReschke/CertLedger/internal/pkg/env"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	// DriverMemory runs on the in-memory store and opens no connection.
	DriverMemory = "memory"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// Config describes the database connection.
type Config struct {
	Driver      string
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	SSLMode     string
	AutoMigrate bool
}

func LoadConfig() Config {
	driver := env.GetEnv("DB_DRIVER", DriverMySQL)
	defaultPort := "3306"
	if driver == DriverPostgres {
		defaultPort = "5432"
	}
	return Config{
		Driver:      driver,
		Host:        env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:        env.GetEnv("DB_PORT", defaultPort),
		User:        env.GetEnv("DB_USER", ""),
		Password:    env.GetEnv("DB_PASSWORD", ""),
		Name:        env.GetEnv("DB_NAME", ""),
		SSLMode:     env.GetEnv("DB_SSLMODE", "disable"),
		AutoMigrate: env.GetEnvBool("DB_AUTO_MIGRATE", true),
	}
}

// DSN returns the driver specific data source name.
func (c Config) DSN() (string, error) {
	switch c.Driver {
	case DriverMySQL:
		// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.Name), nil
	case DriverPostgres:
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode), nil
	}
	return "", fmt.Errorf("unsupported database driver %q", c.Driver)
}

// MigrationURL returns the golang-migrate database URL. The SQL files under
// migrations/ are written for MySQL; PostgreSQL deployments rely on
// AutoMigrate.
func (c Config) MigrationURL() (string, error) {
	if c.Driver != DriverMySQL {
		return "", fmt.Errorf("sql migrations are only provided for %s, use DB_AUTO_MIGRATE for %s", DriverMySQL, c.Driver)
	}
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		c.User, c.Password, c.Host, c.Port, c.Name), nil
}

func (c Config) dialector(dsn string) gorm.Dialector {
	if c.Driver == DriverPostgres {
		return postgres.Open(dsn)
	}
	return mysql.New(mysql.Config{
		DSN:                       dsn,
		DefaultStringSize:         256,
		DisableDatetimePrecision:  true,
		DontSupportRenameIndex:    true,
		DontSupportRenameColumn:   true,
		SkipInitializeWithVersion: false,
	})
}

// Models lists every table owned or read by the service.
func Models() []interface{} {
	return []interface{}{
		&models.Student{},
		&models.Course{},
		&models.Internship{},
		&models.Credential{},
		&models.Enrollment{},
		&models.PaymentProof{},
		&models.GatewayTransaction{},
		&models.GatewayCallbackEvent{},
		&models.PromoCode{},
	}
}

// Open connects with retries and migrates the schema. Unique violations
// surface as gorm.ErrDuplicatedKey.
func Open(cfg Config) (*gorm.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	var db *gorm.DB
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(cfg.dialector(dsn), &gorm.Config{
			TranslateError: true,
			Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
			NowFunc:        func() time.Time { return time.Now().UTC() },
		})
		if err == nil {
			break
		}

		log.Warnf("[Database] Failed to connect to %s (try %d/%d): %v", cfg.Driver, i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(Models()...); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	log.Infof("[Database] Connected to %s database %s on %s:%s", cfg.Driver, cfg.Name, cfg.Host, cfg.Port)
	return db, nil
}
