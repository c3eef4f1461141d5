package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"staffclock/backend/internal/dto"
	"staffclock/backend/internal/service"
	"staffclock/backend/pkg/response"
)

// EmployeeHandler 员工模块 HTTP 处理器
type EmployeeHandler struct {
	employeeSvc service.EmployeeService
}

// NewEmployeeHandler 创建 EmployeeHandler
func NewEmployeeHandler(employeeSvc service.EmployeeService) *EmployeeHandler {
	return &EmployeeHandler{employeeSvc: employeeSvc}
}

// Create 创建员工
// POST /api/v1/employees
func (h *EmployeeHandler) Create(c *gin.Context) {
	var req dto.CreateEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	resp, err := h.employeeSvc.Create(c.Request.Context(), &req)
	if err != nil {
		h.handleEmployeeError(c, err)
		return
	}
	response.Created(c, resp)
}

// List 员工列表（按创建时间倒序）
// GET /api/v1/employees
func (h *EmployeeHandler) List(c *gin.Context) {
	h.list(c, false)
}

// ListActive 在职员工列表
// GET /api/v1/employees/active
func (h *EmployeeHandler) ListActive(c *gin.Context) {
	h.list(c, true)
}

func (h *EmployeeHandler) list(c *gin.Context, activeOnly bool) {
	list, err := h.employeeSvc.List(c.Request.Context(), activeOnly)
	if err != nil {
		h.handleEmployeeError(c, err)
		return
	}
	response.OK(c, list)
}

// Get 获取员工
// GET /api/v1/employees/:id
func (h *EmployeeHandler) Get(c *gin.Context) {
	resp, err := h.employeeSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleEmployeeError(c, err)
		return
	}
	response.OK(c, resp)
}

// Update 更新员工
// PUT /api/v1/employees/:id
func (h *EmployeeHandler) Update(c *gin.Context) {
	var req dto.UpdateEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	resp, err := h.employeeSvc.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.handleEmployeeError(c, err)
		return
	}
	response.OK(c, resp)
}

// Activate 启用员工
// PATCH /api/v1/employees/:id/activate
func (h *EmployeeHandler) Activate(c *gin.Context) {
	resp, err := h.employeeSvc.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleEmployeeError(c, err)
		return
	}
	response.OK(c, resp)
}

// Deactivate 停用员工
// PATCH /api/v1/employees/:id/deactivate
func (h *EmployeeHandler) Deactivate(c *gin.Context) {
	resp, err := h.employeeSvc.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleEmployeeError(c, err)
		return
	}
	response.OK(c, resp)
}

// Delete 删除员工
// DELETE /api/v1/employees/:id
func (h *EmployeeHandler) Delete(c *gin.Context) {
	if err := h.employeeSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.handleEmployeeError(c, err)
		return
	}
	response.OK(c, nil)
}

func (h *EmployeeHandler) handleEmployeeError(c *gin.Context, err error) {
	var inputErr *service.InputError
	switch {
	case errors.As(err, &inputErr):
		response.ErrorWithDetails(c, http.StatusBadRequest, 10001, "参数校验失败", strings.Join(inputErr.Problems, "; "))
	case errors.Is(err, service.ErrEmployeeNotFound):
		response.NotFound(c, 14001, "员工不存在")
	case errors.Is(err, service.ErrEmailExists):
		response.Conflict(c, 14002, "邮箱已被使用")
	case errors.Is(err, service.ErrNationalIDExists):
		response.Conflict(c, 14003, "证件号已被使用")
	case errors.Is(err, service.ErrEmployeeAlreadyActive):
		response.BadRequest(c, 14004, "员工已处于在职状态")
	case errors.Is(err, service.ErrEmployeeAlreadyInactive):
		response.BadRequest(c, 14005, "员工已处于停用状态")
	default:
		response.InternalError(c)
	}
}
