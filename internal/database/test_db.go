package database

import (
	"fmt"
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq int64

// InitTestDB 每次创建一个独立的内存数据库
func InitTestDB() {
	var err error
	name := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	DB, err = gorm.Open(sqlite.Open(name), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic("failed to connect test database")
	}

	// 自动迁移测试数据库
	if err := DB.AutoMigrate(models...); err != nil {
		panic("failed to migrate test database")
	}
}

func CleanTestDB() {
	_ = Close()
}
