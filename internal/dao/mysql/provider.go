package mysql

import (
	"gorm.io/gorm"
)

// Repositories 聚合所有 Repository 实例
type Repositories struct {
	db    *gorm.DB
	Audit AuditRepository
	Ban   BanRepository
}

// NewRepositories 创建所有 Repository 实例
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:    db,
		Audit: NewAuditRepository(db),
		Ban:   NewBanRepository(db),
	}
}

// Close 关闭底层连接池
func (r *Repositories) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
