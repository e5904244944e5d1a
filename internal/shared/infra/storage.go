package infra

import (
	"fmt"

	"golden-drift/internal/shared/storage"
	"golden-drift/internal/shared/storage/dbutil"
	pgdriver "golden-drift/internal/shared/storage/driver/postgres"
	sqlitedriver "golden-drift/internal/shared/storage/driver/sqlite"
	"golden-drift/internal/shared/storage/mongostore"
	"golden-drift/internal/shared/storage/repository"
)

// DriverMongoDB MongoDB 驱动标识（不经过 dbutil.Dialect）
const DriverMongoDB = "mongodb"

// NewPersistentStore 根据驱动类型创建持久化存储
// 支持的驱动类型：sqlite, postgres, mongodb
//
// SQL 驱动启动时自动建表；dbName 只对 mongodb 生效。
func NewPersistentStore(driver, dsn, dbName string) (storage.PersistentStore, error) {
	switch driver {
	case string(dbutil.DriverSQLite):
		db, err := sqlitedriver.Open(dsn)
		if err != nil {
			return nil, err
		}
		dialect := sqlitedriver.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite auto-migrate failed: %w", err)
		}
		return repository.NewStore(db, dialect), nil

	case string(dbutil.DriverPostgres):
		db, err := pgdriver.Open(dsn)
		if err != nil {
			return nil, err
		}
		dialect := pgdriver.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("postgres auto-migrate failed: %w", err)
		}
		return repository.NewStore(db, dialect), nil

	case DriverMongoDB:
		if dbName == "" {
			dbName = "golden_drift"
		}
		return mongostore.NewStore(dsn, dbName)

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}
