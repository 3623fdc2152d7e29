package accounts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

// accountRecord 数据库中的账号行
type accountRecord struct {
	ID         string `gorm:"primaryKey;size:36"`
	Name       string `gorm:"size:100;not null"`
	Cookie     string `gorm:"type:text;not null"`
	Status     string `gorm:"size:16;index;not null"`
	UsageCount int64  `gorm:"not null;default:0;index"`
	LastUsedAt *time.Time
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

func (accountRecord) TableName() string { return "accounts" }

func toRecord(a *models.Account) accountRecord {
	return accountRecord{
		ID:         a.ID,
		Name:       a.Name,
		Cookie:     a.Cookie,
		Status:     string(a.Status),
		UsageCount: a.UsageCount,
		LastUsedAt: a.LastUsedAt,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func (r accountRecord) toModel() models.Account {
	return models.Account{
		ID:         r.ID,
		Name:       r.Name,
		Cookie:     r.Cookie,
		Status:     models.AccountStatus(r.Status),
		UsageCount: r.UsageCount,
		LastUsedAt: r.LastUsedAt,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// GormStore 基于 GORM 的账号存储 (sqlite / mysql)
type GormStore struct {
	db *gorm.DB
}

// OpenGormStore 打开数据库并迁移表结构
func OpenGormStore(driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("打开账号数据库失败: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore 使用已有连接
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&accountRecord{}); err != nil {
		return nil, fmt.Errorf("迁移账号表失败: %w", err)
	}
	return &GormStore{db: db}, nil
}

// ensureDir 为文件型 sqlite 创建父目录
func ensureDir(dsn string) error {
	if dsn == "" || strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, ":memory:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建数据目录失败: %w", err)
	}
	return nil
}

func (s *GormStore) ListByStatus(ctx context.Context, status models.AccountStatus) ([]models.Account, error) {
	var rows []accountRecord
	err := s.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("usage_count ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

func (s *GormStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	var row accountRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	a := row.toModel()
	return &a, nil
}

// IncrementUsage 在数据库侧自增,避免读改写
func (s *GormStore) IncrementUsage(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&accountRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"usage_count":  gorm.Expr("usage_count + ?", 1),
			"last_used_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

func (s *GormStore) Create(ctx context.Context, account *models.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	row := toRecord(account)
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) List(ctx context.Context) ([]models.Account, error) {
	var rows []accountRecord
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

func (s *GormStore) UpdateStatus(ctx context.Context, id string, status models.AccountStatus) error {
	if !status.Valid() {
		return models.ErrInvalidAccount
	}
	res := s.db.WithContext(ctx).Model(&accountRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&accountRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toModels(rows []accountRecord) []models.Account {
	list := make([]models.Account, 0, len(rows))
	for _, r := range rows {
		list = append(list, r.toModel())
	}
	return list
}
