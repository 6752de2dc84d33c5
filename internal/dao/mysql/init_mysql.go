package mysql

import (
	"fmt"

	"chatsphere_server/internal/config"
	"chatsphere_server/internal/model"
	"chatsphere_server/pkg/errorx"

	"go.uber.org/zap"
	mysqldriver "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Init 建立数据库连接、迁移审计表并返回 Repository 实例
// 未配置 Host 时返回 (nil, nil)，审计只保留在内存
func Init(conf config.MysqlConfig) (*Repositories, error) {
	if conf.Host == "" {
		zap.L().Info("mysql 未配置，审核记录不落库")
		return nil, nil
	}
	port := conf.Port
	if port == 0 {
		port = 3306
	}

	// 格式：user:password@tcp(host:port)/database?params
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		conf.User,
		conf.Password,
		conf.Host,
		port,
		conf.DatabaseName,
	)

	db, err := gorm.Open(mysqldriver.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeDBError, "连接 mysql")
	}

	// AutoMigrate 不会删除已有字段或数据
	if err := db.AutoMigrate(
		&model.ModerationRecord{},
		&model.RoomBan{},
	); err != nil {
		return nil, errorx.Wrap(err, errorx.CodeDBError, "迁移审计表")
	}
	return NewRepositories(db), nil
}
