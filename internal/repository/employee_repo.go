package repository

import (
	"context"

	"gorm.io/gorm"

	"staffclock/backend/internal/model"
)

// EmployeeRepository 员工数据访问接口
type EmployeeRepository interface {
	Create(ctx context.Context, employee *model.Employee) error
	GetByID(ctx context.Context, id string) (*model.Employee, error)
	// GetActiveByID 仅返回 active = true 的员工，供身份校验使用
	GetActiveByID(ctx context.Context, id string) (*model.Employee, error)
	GetByEmail(ctx context.Context, email string) (*model.Employee, error)
	GetByNationalID(ctx context.Context, nationalID string) (*model.Employee, error)
	List(ctx context.Context, activeOnly bool) ([]model.Employee, error)
	Update(ctx context.Context, employee *model.Employee) error
	Delete(ctx context.Context, id string) error
}

type employeeRepo struct {
	db *gorm.DB
}

// NewEmployeeRepo 创建 EmployeeRepository 实例
func NewEmployeeRepo(db *gorm.DB) EmployeeRepository {
	return &employeeRepo{db: db}
}

func (r *employeeRepo) Create(ctx context.Context, employee *model.Employee) error {
	return r.db.WithContext(ctx).Create(employee).Error
}

func (r *employeeRepo) GetByID(ctx context.Context, id string) (*model.Employee, error) {
	return r.findOne(ctx, "employee_id = ?", id)
}

func (r *employeeRepo) GetActiveByID(ctx context.Context, id string) (*model.Employee, error) {
	return r.findOne(ctx, "employee_id = ? AND active = ?", id, true)
}

func (r *employeeRepo) GetByEmail(ctx context.Context, email string) (*model.Employee, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *employeeRepo) GetByNationalID(ctx context.Context, nationalID string) (*model.Employee, error) {
	return r.findOne(ctx, "national_id = ?", nationalID)
}

func (r *employeeRepo) findOne(ctx context.Context, query string, args ...interface{}) (*model.Employee, error) {
	var employee model.Employee
	err := r.db.WithContext(ctx).
		Where(query, args...).
		Take(&employee).Error
	if err != nil {
		return nil, err
	}
	return &employee, nil
}

func (r *employeeRepo) List(ctx context.Context, activeOnly bool) ([]model.Employee, error) {
	var employees []model.Employee
	db := r.db.WithContext(ctx)
	if activeOnly {
		db = db.Where("active = ?", true)
	}
	err := db.Order("created_at DESC").Find(&employees).Error
	return employees, err
}

func (r *employeeRepo) Update(ctx context.Context, employee *model.Employee) error {
	return r.db.WithContext(ctx).Save(employee).Error
}

func (r *employeeRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Where("employee_id = ?", id).
		Delete(&model.Employee{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
