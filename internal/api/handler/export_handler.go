package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"staffclock/backend/internal/dto"
	"staffclock/backend/internal/service"
	"staffclock/backend/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportMonthly 导出月度考勤
// GET /api/v1/attendance/export?year=&month=&employee_id=
func (h *ExportHandler) ExportMonthly(c *gin.Context) {
	var req dto.MonthlyReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "year / month 参数无效")
		return
	}

	buf, filename, err := h.exportSvc.ExportMonthly(c.Request.Context(), &req)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	// 设置下载响应头
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExportNoRecords):
		response.NotFound(c, 15101, "该月份暂无考勤记录")
	default:
		response.InternalError(c)
	}
}
