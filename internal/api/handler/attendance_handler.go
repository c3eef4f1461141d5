package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"staffclock/backend/internal/dto"
	"staffclock/backend/internal/service"
	pkgerrors "staffclock/backend/pkg/errors"
	"staffclock/backend/pkg/response"
)

// AttendanceHandler 考勤模块 HTTP 处理器
type AttendanceHandler struct {
	attendanceSvc service.AttendanceService
}

// NewAttendanceHandler 创建 AttendanceHandler
func NewAttendanceHandler(attendanceSvc service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendanceSvc: attendanceSvc}
}

// Submit 提交打卡
// POST /api/v1/attendance
//
// 返回 201 时记录状态为 pending，最终结果由员工校验异步决定
func (h *AttendanceHandler) Submit(c *gin.Context) {
	var req dto.SubmitAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	resp, err := h.attendanceSvc.Submit(c.Request.Context(), &req)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.Created(c, resp)
}

// ForceSubmit 管理员强制录入
// POST /api/v1/attendance/force
func (h *AttendanceHandler) ForceSubmit(c *gin.Context) {
	var req dto.ForceAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	resp, err := h.attendanceSvc.ForceSubmit(c.Request.Context(), &req)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.Created(c, resp)
}

// WorkingHours 获取工作时间窗口
// GET /api/v1/attendance/working-hours
func (h *AttendanceHandler) WorkingHours(c *gin.Context) {
	response.OK(c, h.attendanceSvc.WorkingHours(c.Request.Context()))
}

// ListPending 列出待校验记录
// GET /api/v1/attendance/pending
func (h *AttendanceHandler) ListPending(c *gin.Context) {
	list, err := h.attendanceSvc.ListPending(c.Request.Context())
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, list)
}

// Stats 按状态统计
// GET /api/v1/attendance/stats
func (h *AttendanceHandler) Stats(c *gin.Context) {
	stats, err := h.attendanceSvc.Stats(c.Request.Context())
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, stats)
}

// Monthly 月度考勤
// GET /api/v1/attendance/monthly/:year/:month?employee_id=
func (h *AttendanceHandler) Monthly(c *gin.Context) {
	year, errYear := strconv.Atoi(c.Param("year"))
	month, errMonth := strconv.Atoi(c.Param("month"))
	if errYear != nil || errMonth != nil || year < 2000 || year > 2100 || month < 1 || month > 12 {
		response.BadRequest(c, 10001, "年份或月份无效")
		return
	}

	req := dto.MonthlyReportRequest{
		Year:       year,
		Month:      month,
		EmployeeID: c.Query("employee_id"),
	}
	resp, err := h.attendanceSvc.Monthly(c.Request.Context(), &req)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, resp)
}

// ListByEmployee 某员工的记录，可按日期过滤，按时间升序
// GET /api/v1/attendance/employee/:employeeId?date=
func (h *AttendanceHandler) ListByEmployee(c *gin.Context) {
	list, err := h.attendanceSvc.ListByEmployeeDate(c.Request.Context(), c.Param("employeeId"), c.Query("date"))
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, list)
}

// List 分页查询
// GET /api/v1/attendance?employee_id=&date=&status=&page=&page_size=
func (h *AttendanceHandler) List(c *gin.Context) {
	var req dto.AttendanceListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.attendanceSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// Get 获取单条记录
// GET /api/v1/attendance/:id
func (h *AttendanceHandler) Get(c *gin.Context) {
	resp, err := h.attendanceSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, resp)
}

// Update 直接修改记录
// PATCH /api/v1/attendance/:id
func (h *AttendanceHandler) Update(c *gin.Context) {
	var req dto.UpdateAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	resp, err := h.attendanceSvc.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, resp)
}

// UpdateStatus 直接修改状态
// PATCH /api/v1/attendance/:id/status
func (h *AttendanceHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateAttendanceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	resp, err := h.attendanceSvc.UpdateStatus(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, resp)
}

// Delete 删除记录
// DELETE /api/v1/attendance/:id
func (h *AttendanceHandler) Delete(c *gin.Context) {
	if err := h.attendanceSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, nil)
}

// DeleteByEmployee 删除某员工全部记录
// DELETE /api/v1/attendance/employee/:employeeId
func (h *AttendanceHandler) DeleteByEmployee(c *gin.Context) {
	resp, err := h.attendanceSvc.DeleteByEmployee(c.Request.Context(), c.Param("employeeId"))
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, resp)
}

// ── 错误映射 ──

func (h *AttendanceHandler) handleAttendanceError(c *gin.Context, err error) {
	var inputErr *service.InputError
	var ruleErr *service.RuleViolationError
	switch {
	case errors.As(err, &inputErr):
		response.ErrorWithDetails(c, http.StatusBadRequest, 10001, "参数校验失败", strings.Join(inputErr.Problems, "; "))
	case errors.As(err, &ruleErr):
		response.UnprocessableEntity(c, 15002, ruleErr.Message)
	case errors.Is(err, service.ErrAttendanceNotFound):
		response.NotFound(c, 15001, "考勤记录不存在")
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 15003, "记录已被修改，请刷新后重试")
	case errors.Is(err, pkgerrors.ErrBusy):
		response.ServiceUnavailable(c, 15004, "该员工当日打卡正在处理中，请稍后重试")
	default:
		response.InternalError(c)
	}
}
