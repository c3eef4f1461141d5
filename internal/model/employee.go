package model

import (
	"time"

	"gorm.io/gorm"
)

// Employee 员工表 — 对应 employees（员工服务所有，考勤服务只通过消息读取）
type Employee struct {
	EmployeeID    string     `gorm:"type:uuid;primaryKey"          json:"employee_id"`
	Name          string     `gorm:"type:varchar(100);not null"    json:"name"`
	Email         string     `gorm:"type:varchar(150);not null"    json:"email"`
	NationalID    string     `gorm:"type:varchar(20);not null"     json:"national_id"`
	Phone         *string    `gorm:"type:varchar(20)"              json:"phone,omitempty"`
	Position      *string    `gorm:"type:varchar(100)"             json:"position,omitempty"`
	Salary        *float64   `gorm:"type:numeric(10,2)"            json:"salary,omitempty"`
	HiredOn       *time.Time `gorm:"type:date"                     json:"hired_on,omitempty"`
	Active        bool       `gorm:"not null;default:true"         json:"active"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	BaseModel
}

// TableName 指定表名
func (Employee) TableName() string { return "employees" }

// BeforeCreate 未指定 ID 时生成 UUID
func (e *Employee) BeforeCreate(_ *gorm.DB) error {
	if e.EmployeeID == "" {
		e.EmployeeID = newID()
	}
	return nil
}
