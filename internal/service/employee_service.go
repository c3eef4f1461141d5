package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"staffclock/backend/internal/dto"
	"staffclock/backend/internal/model"
	"staffclock/backend/internal/repository"
	"staffclock/backend/internal/rules"
)

// ── 员工模块业务错误 ──

var (
	ErrEmployeeNotFound        = errors.New("员工不存在")
	ErrEmailExists             = errors.New("邮箱已被使用")
	ErrNationalIDExists        = errors.New("证件号已被使用")
	ErrEmployeeAlreadyActive   = errors.New("员工已处于在职状态")
	ErrEmployeeAlreadyInactive = errors.New("员工已处于停用状态")
)

// EmployeeService 员工业务接口
type EmployeeService interface {
	Create(ctx context.Context, req *dto.CreateEmployeeRequest) (*dto.EmployeeResponse, error)
	GetByID(ctx context.Context, id string) (*dto.EmployeeResponse, error)
	List(ctx context.Context, activeOnly bool) ([]dto.EmployeeResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateEmployeeRequest) (*dto.EmployeeResponse, error)
	Activate(ctx context.Context, id string) (*dto.EmployeeResponse, error)
	Deactivate(ctx context.Context, id string) (*dto.EmployeeResponse, error)
	Delete(ctx context.Context, id string) error
}

type employeeService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewEmployeeService 创建 EmployeeService 实例
func NewEmployeeService(repo *repository.Repository, logger *zap.Logger) EmployeeService {
	return &employeeService{repo: repo, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *employeeService) Create(ctx context.Context, req *dto.CreateEmployeeRequest) (*dto.EmployeeResponse, error) {
	hiredOn, err := parseHiredOn(req.HiredOn)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, "", req.Email, req.NationalID); err != nil {
		return nil, err
	}

	employee := &model.Employee{
		Name:       req.Name,
		Email:      req.Email,
		NationalID: req.NationalID,
		Phone:      req.Phone,
		Position:   req.Position,
		Salary:     req.Salary,
		HiredOn:    hiredOn,
		Active:     true,
	}
	if err := s.repo.Employee.Create(ctx, employee); err != nil {
		s.logger.Error("创建员工失败", zap.String("email", req.Email), zap.Error(err))
		return nil, err
	}

	s.logger.Info("员工已创建", zap.String("employee_id", employee.EmployeeID))
	return toEmployeeResponse(employee), nil
}

// checkUnique 邮箱与证件号唯一；selfID 非空时忽略自身
func (s *employeeService) checkUnique(ctx context.Context, selfID, email, nationalID string) error {
	if email != "" {
		existing, err := s.repo.Employee.GetByEmail(ctx, email)
		if err == nil && existing.EmployeeID != selfID {
			return ErrEmailExists
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	if nationalID != "" {
		existing, err := s.repo.Employee.GetByNationalID(ctx, nationalID)
		if err == nil && existing.EmployeeID != selfID {
			return ErrNationalIDExists
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	return nil
}

// ────────────────────── 查询 ──────────────────────

func (s *employeeService) getEmployee(ctx context.Context, id string) (*model.Employee, error) {
	employee, err := s.repo.Employee.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEmployeeNotFound
		}
		s.logger.Error("查询员工失败", zap.String("employee_id", id), zap.Error(err))
		return nil, err
	}
	return employee, nil
}

func (s *employeeService) GetByID(ctx context.Context, id string) (*dto.EmployeeResponse, error) {
	employee, err := s.getEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	return toEmployeeResponse(employee), nil
}

func (s *employeeService) List(ctx context.Context, activeOnly bool) ([]dto.EmployeeResponse, error) {
	employees, err := s.repo.Employee.List(ctx, activeOnly)
	if err != nil {
		s.logger.Error("列出员工失败", zap.Error(err))
		return nil, err
	}
	result := make([]dto.EmployeeResponse, 0, len(employees))
	for i := range employees {
		result = append(result, *toEmployeeResponse(&employees[i]))
	}
	return result, nil
}

// ────────────────────── Update ──────────────────────

func (s *employeeService) Update(ctx context.Context, id string, req *dto.UpdateEmployeeRequest) (*dto.EmployeeResponse, error) {
	employee, err := s.getEmployee(ctx, id)
	if err != nil {
		return nil, err
	}

	var email, nationalID string
	if req.Email != nil && *req.Email != employee.Email {
		email = *req.Email
	}
	if req.NationalID != nil && *req.NationalID != employee.NationalID {
		nationalID = *req.NationalID
	}
	if err := s.checkUnique(ctx, id, email, nationalID); err != nil {
		return nil, err
	}

	if req.HiredOn != nil {
		hiredOn, err := parseHiredOn(req.HiredOn)
		if err != nil {
			return nil, err
		}
		employee.HiredOn = hiredOn
	}
	if req.Name != nil {
		employee.Name = *req.Name
	}
	if email != "" {
		employee.Email = email
	}
	if nationalID != "" {
		employee.NationalID = nationalID
	}
	if req.Phone != nil {
		employee.Phone = req.Phone
	}
	if req.Position != nil {
		employee.Position = req.Position
	}
	if req.Salary != nil {
		employee.Salary = req.Salary
	}

	if err := s.save(ctx, employee); err != nil {
		return nil, err
	}
	return toEmployeeResponse(employee), nil
}

// ────────────────────── 启用 / 停用 ──────────────────────

func (s *employeeService) Activate(ctx context.Context, id string) (*dto.EmployeeResponse, error) {
	employee, err := s.getEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	if employee.Active {
		return nil, ErrEmployeeAlreadyActive
	}

	employee.Active = true
	employee.DeactivatedAt = nil
	if err := s.save(ctx, employee); err != nil {
		return nil, err
	}

	s.logger.Info("员工已启用", zap.String("employee_id", id))
	return toEmployeeResponse(employee), nil
}

func (s *employeeService) Deactivate(ctx context.Context, id string) (*dto.EmployeeResponse, error) {
	employee, err := s.getEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	if !employee.Active {
		return nil, ErrEmployeeAlreadyInactive
	}

	now := time.Now()
	employee.Active = false
	employee.DeactivatedAt = &now
	if err := s.save(ctx, employee); err != nil {
		return nil, err
	}

	s.logger.Info("员工已停用", zap.String("employee_id", id))
	return toEmployeeResponse(employee), nil
}

// ────────────────────── Delete ──────────────────────

func (s *employeeService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Employee.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEmployeeNotFound
		}
		s.logger.Error("删除员工失败", zap.String("employee_id", id), zap.Error(err))
		return err
	}
	s.logger.Info("员工已删除", zap.String("employee_id", id))
	return nil
}

// ── 内部辅助 ──

func (s *employeeService) save(ctx context.Context, employee *model.Employee) error {
	if err := s.repo.Employee.Update(ctx, employee); err != nil {
		s.logger.Error("更新员工失败", zap.String("employee_id", employee.EmployeeID), zap.Error(err))
		return err
	}
	return nil
}

func parseHiredOn(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(rules.DateLayout, *s)
	if err != nil {
		return nil, &InputError{Problems: []string{"hired_on must be YYYY-MM-DD"}}
	}
	return &t, nil
}

func toEmployeeResponse(e *model.Employee) *dto.EmployeeResponse {
	resp := &dto.EmployeeResponse{
		ID:         e.EmployeeID,
		Name:       e.Name,
		Email:      e.Email,
		NationalID: e.NationalID,
		Phone:      e.Phone,
		Position:   e.Position,
		Salary:     e.Salary,
		Active:     e.Active,
		CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  e.UpdatedAt.Format(time.RFC3339),
	}
	if e.HiredOn != nil {
		h := e.HiredOn.Format(rules.DateLayout)
		resp.HiredOn = &h
	}
	if e.DeactivatedAt != nil {
		d := e.DeactivatedAt.Format(time.RFC3339)
		resp.DeactivatedAt = &d
	}
	return resp
}
