package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"staffclock/backend/internal/dto"
	"staffclock/backend/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoRecords    = errors.New("该月份暂无考勤记录")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
//   - Sheet "明细"：当月全部记录（含 pending / rejected），按日期、时间排序
//   - Sheet "汇总"：按员工 + 日期汇总 validated 记录及工时
type ExportService interface {
	// ExportMonthly 导出月度考勤为 Excel
	ExportMonthly(ctx context.Context, req *dto.MonthlyReportRequest) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportMonthly — 导出月度考勤为 Excel
// ═══════════════════════════════════════════════════════════
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportMonthly(ctx context.Context, req *dto.MonthlyReportRequest) (*bytes.Buffer, string, error) {
	records, err := listMonthRecords(ctx, s.repo.Attendance, req)
	if err != nil {
		s.logger.Error("查询月度考勤失败", zap.Error(err))
		return nil, "", err
	}
	if len(records) == 0 {
		return nil, "", ErrExportNoRecords
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// ── 明细 ──
	detail := "明细"
	idx, _ := f.NewSheet(detail)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	detailHeaders := []string{"日期", "时间", "员工ID", "员工姓名", "类型", "状态", "拒绝原因", "备注"}
	writeHeader(f, detail, detailHeaders, headerStyle)
	f.SetColWidth(detail, "A", "B", 12)
	f.SetColWidth(detail, "C", "C", 38)
	f.SetColWidth(detail, "D", "F", 14)
	f.SetColWidth(detail, "G", "H", 40)

	for i, r := range records {
		row := i + 2
		f.SetCellValue(detail, cell("A", row), r.RecordDate)
		f.SetCellValue(detail, cell("B", row), r.RecordTime)
		f.SetCellValue(detail, cell("C", row), r.EmployeeID)
		f.SetCellValue(detail, cell("D", row), deref(r.EmployeeName))
		f.SetCellValue(detail, cell("E", row), r.Kind)
		f.SetCellValue(detail, cell("F", row), r.Status)
		f.SetCellValue(detail, cell("G", row), deref(r.RejectionReason))
		f.SetCellValue(detail, cell("H", row), deref(r.Notes))
	}

	// ── 汇总 ──
	summary := "汇总"
	f.NewSheet(summary)
	summaryHeaders := []string{"日期", "员工ID", "进入次数", "离开次数", "首次进入", "最后离开", "工时(分钟)"}
	writeHeader(f, summary, summaryHeaders, headerStyle)
	f.SetColWidth(summary, "A", "A", 12)
	f.SetColWidth(summary, "B", "B", 38)
	f.SetColWidth(summary, "C", "G", 12)

	for i, d := range summarizeDays(records) {
		row := i + 2
		f.SetCellValue(summary, cell("A", row), d.Date)
		f.SetCellValue(summary, cell("B", row), d.EmployeeID)
		f.SetCellValue(summary, cell("C", row), d.Entries)
		f.SetCellValue(summary, cell("D", row), d.Exits)
		f.SetCellValue(summary, cell("E", row), d.FirstEntry)
		f.SetCellValue(summary, cell("F", row), d.LastExit)
		f.SetCellValue(summary, cell("G", row), d.WorkedMinutes)
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("attendance_%04d-%02d.xlsx", req.Year, req.Month)
	if req.EmployeeID != "" {
		filename = fmt.Sprintf("attendance_%04d-%02d_%s.xlsx", req.Year, req.Month, req.EmployeeID)
	}
	return buf, filename, nil
}

// ── 辅助函数 ──

func writeHeader(f *excelize.File, sheet string, headers []string, style int) {
	for i, h := range headers {
		f.SetCellValue(sheet, cell(colName(i), 1), h)
	}
	f.SetCellStyle(sheet, "A1", cell(colName(len(headers)-1), 1), style)
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

