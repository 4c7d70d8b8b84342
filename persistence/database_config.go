package persistence

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type DatabaseConfig struct {
	DriverType string
	DriverArgs string

	MaxOpenConns int
	MaxIdleConns int
}

// ParseDatabaseConfigFromEnv reads DB_DRIVER_TYPE and DB_DRIVER_ARGS, or the
// MYSQL_* parts when only those are present. A local sqlite file is used when
// nothing is configured.
func ParseDatabaseConfigFromEnv() (*DatabaseConfig, error) {
	config := &DatabaseConfig{
		DriverType: os.Getenv("DB_DRIVER_TYPE"),
		DriverArgs: os.Getenv("DB_DRIVER_ARGS"),
	}
	if v := os.Getenv("DB_MAX_OPEN_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
		}
		config.MaxOpenConns = n
	}
	if v := os.Getenv("DB_MAX_IDLE_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
		}
		config.MaxIdleConns = n
	}

	if config.DriverType == "" && os.Getenv("MYSQL_HOST") != "" {
		mysqlConfig := mysql.NewConfig()
		mysqlConfig.User = os.Getenv("MYSQL_USERNAME")
		mysqlConfig.Passwd = os.Getenv("MYSQL_PASSWORD")
		mysqlConfig.Net = "tcp"
		port := os.Getenv("MYSQL_PORT")
		if port == "" {
			port = "3306"
		}
		mysqlConfig.Addr = os.Getenv("MYSQL_HOST") + ":" + port
		mysqlConfig.DBName = os.Getenv("MYSQL_DATABASE")
		if mysqlConfig.DBName == "" {
			mysqlConfig.DBName = "gatekeeper"
		}
		mysqlConfig.ParseTime = true
		mysqlConfig.Params = map[string]string{"charset": "utf8mb4"}
		config.DriverType = DriverMySQL
		config.DriverArgs = mysqlConfig.FormatDSN()
	}

	if config.DriverType == "" {
		config.DriverType = DriverSQLite
		if config.DriverArgs == "" {
			config.DriverArgs = "gatekeeper.db"
		}
	}

	switch config.DriverType {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		return nil, errors.New("unsupported database driver " + config.DriverType)
	}
	if config.DriverArgs == "" {
		return nil, errors.New("DB_DRIVER_ARGS is required for driver " + config.DriverType)
	}
	return config, nil
}

// PrepareMysqlDatabase creates the database named in the dsn if it is missing.
func PrepareMysqlDatabase(dsn string) error {
	mysqlConfig, err := mysql.ParseDSN(dsn)
	if err != nil {
		return err
	}
	dbName := mysqlConfig.DBName
	if dbName == "" {
		return errors.New("database name is missing in dsn")
	}
	mysqlConfig.DBName = ""

	db, err := gorm.Open(DriverMySQL, mysqlConfig.FormatDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Exec("CREATE DATABASE IF NOT EXISTS `" + dbName + "` DEFAULT CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci").Error
}
