package persistence

import (
	"context"
	"database/sql"
	"errors"
	"os"

	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
	otgorm "github.com/smacker/opentracing-gorm"
)

var ActiveDataSourceManager *DataSourceManager

type DataSourceManager struct {
	gormDB *gorm.DB

	DatabaseConfig *DatabaseConfig
}

// NewDataSourceManager wraps an already opened connection.
func NewDataSourceManager(db *gorm.DB) *DataSourceManager {
	otgorm.AddGormCallbacks(db)
	return &DataSourceManager{gormDB: db}
}

func (m *DataSourceManager) Start() error {
	db, err := connect(m.DatabaseConfig)
	if err != nil {
		return err
	}
	m.gormDB = db
	m.gormDB.SetLogger(gormLogger{})
	if os.Getenv("GIN_MODE") != "release" {
		m.gormDB.LogMode(true)
	}
	otgorm.AddGormCallbacks(m.gormDB)
	return nil
}

func (m *DataSourceManager) Stop() {
	if m.gormDB != nil {
		if err := m.gormDB.Close(); err != nil {
			logrus.Warnf("failed to close DB: %v", err)
		}
		m.gormDB = nil
	}
}

// GormDB returns a fresh session carrying the span of ctx, so that the sql
// statements show up as children of the request span.
func (m *DataSourceManager) GormDB(ctx context.Context) *gorm.DB {
	if m.gormDB == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return otgorm.SetSpanToGorm(ctx, m.gormDB.New())
}

func (m *DataSourceManager) Ping(ctx context.Context) error {
	if m.gormDB == nil {
		return errors.New("data source is not started")
	}
	return m.gormDB.DB().PingContext(ctx)
}

// SQLDB exposes the connection pool, nil before Start.
func (m *DataSourceManager) SQLDB() *sql.DB {
	if m.gormDB == nil {
		return nil
	}
	return m.gormDB.DB()
}

func connect(config *DatabaseConfig) (*gorm.DB, error) {
	if config == nil {
		return nil, errors.New("database config is missing")
	}
	db, err := gorm.Open(config.DriverType, config.DriverArgs)
	if err != nil {
		return nil, err
	}
	if config.MaxOpenConns > 0 {
		db.DB().SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.DB().SetMaxIdleConns(config.MaxIdleConns)
	}
	err = db.DB().Ping()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type gormLogger struct{}

func (gormLogger) Print(v ...interface{}) {
	if len(v) > 0 && v[0] == "sql" && len(v) >= 4 {
		logrus.WithFields(logrus.Fields{"source": v[1], "duration": v[2]}).Debug(v[3])
		return
	}
	logrus.Debug(v...)
}
