package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/elahist/paint-together/internal/domain"
)

// MigrateDB handles all database migrations using the provided GORM DB instance.
// rooms 表用自定义 SQL 创建：grid/participants 是 TEXT 列，
// AutoMigrate 对 TEXT 列上的索引处理不好，显式建表更可控。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	if err := migrateRoomsTable(db); err != nil {
		return fmt.Errorf("failed to migrate rooms table: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

// migrateRoomsTable 处理 rooms 表迁移
func migrateRoomsTable(db *gorm.DB) error {
	var count int64
	db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = 'rooms'").Count(&count)

	if count == 0 {
		return createRoomsTable(db)
	}
	return updateRoomsTable(db)
}

// createRoomsTable 创建 rooms 表
func createRoomsTable(db *gorm.DB) error {
	sql := `
	CREATE TABLE rooms (
		id BIGINT UNSIGNED PRIMARY KEY,
		grid_width INT NOT NULL,
		grid_height INT NOT NULL,
		canvas_width INT NOT NULL,
		canvas_height INT NOT NULL,
		grid LONGTEXT NOT NULL,
		creator_addr VARCHAR(64),
		creator_token_hash VARCHAR(191) NOT NULL,
		participants TEXT,
		is_available BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME(3),
		updated_at DATETIME(3),
		INDEX idx_is_available (is_available),
		INDEX idx_updated_at (updated_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_general_ci;
	`
	if err := db.Exec(sql).Error; err != nil {
		logrus.Errorf("Failed to create rooms table: %v", err)
		return fmt.Errorf("failed to create rooms table: %w", err)
	}
	logrus.Info("Rooms table created successfully")
	return nil
}

// updateRoomsTable 让 AutoMigrate 补齐新增列和索引
func updateRoomsTable(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.Room{}); err != nil {
		logrus.Errorf("Failed to auto-migrate Room table: %v", err)
		return fmt.Errorf("failed to migrate room schema: %w", err)
	}
	logrus.Info("Rooms table schema checked/updated successfully")
	return nil
}
