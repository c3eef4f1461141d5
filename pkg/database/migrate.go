package database

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/attendance/*.sql migrations/registry/*.sql
var migrationsFS embed.FS

// 各服务拥有独立的迁移目录
const (
	SchemaAttendance = "attendance"
	SchemaRegistry   = "registry"
)

// RunMigrations 执行指定服务的数据库迁移
// 每个服务使用独立的版本表，两个服务即使共用一个库也互不干扰
func RunMigrations(db *sql.DB, schema string, logger *zap.Logger) error {
	if schema != SchemaAttendance && schema != SchemaRegistry {
		return fmt.Errorf("未知的迁移目录: %s", schema)
	}

	source, err := iofs.New(migrationsFS, "migrations/"+schema)
	if err != nil {
		return fmt.Errorf("加载迁移文件失败: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_migrations_" + schema,
	})
	if err != nil {
		return fmt.Errorf("创建迁移驱动失败: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("初始化迁移实例失败: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("执行迁移失败: %w", err)
	}

	version, dirty, _ := m.Version()
	if dirty {
		logger.Warn("数据库迁移处于 dirty 状态", zap.String("schema", schema), zap.Uint("version", version))
	} else {
		logger.Info("数据库迁移完成", zap.String("schema", schema), zap.Uint("version", version))
	}

	return nil
}
