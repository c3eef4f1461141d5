package dto

// ── 考勤模块 DTO ──

// SubmitAttendanceRequest 打卡请求
// 字段级校验在 service 层统一完成，以便一次返回所有错误项
type SubmitAttendanceRequest struct {
	EmployeeID string `json:"employee_id"`
	Kind       string `json:"kind"`           // entry | exit
	Date       string `json:"date,omitempty"` // YYYY-MM-DD，缺省为今天
	Time       string `json:"time,omitempty"` // HH:MM[:SS]，缺省为当前时间
}

// ForceAttendanceRequest 管理员强制录入（跳过规则与员工校验）
type ForceAttendanceRequest struct {
	Attendance SubmitAttendanceRequest `json:"attendance"`
	AdminNote  string                  `json:"admin_note" binding:"required,max=500"`
}

// UpdateAttendanceRequest 直接修改记录字段，不走校验协议
type UpdateAttendanceRequest struct {
	EmployeeID      *string `json:"employee_id"`
	Date            *string `json:"date"`
	Time            *string `json:"time"`
	Kind            *string `json:"kind"`
	Status          *string `json:"status"           binding:"omitempty,oneof=pending validated rejected"`
	RejectionReason *string `json:"rejection_reason"`
	Notes           *string `json:"notes"`
}

// UpdateAttendanceStatusRequest 直接修改状态
type UpdateAttendanceStatusRequest struct {
	Status string  `json:"status" binding:"required,oneof=pending validated rejected"`
	Reason *string `json:"reason" binding:"omitempty,max=500"`
}

// AttendanceListRequest 考勤列表查询参数
type AttendanceListRequest struct {
	PaginationRequest
	EmployeeID string `form:"employee_id"`
	Date       string `form:"date"`
	Status     string `form:"status" binding:"omitempty,oneof=pending validated rejected"`
}

// MonthlyReportRequest 月度查询 / 导出参数
type MonthlyReportRequest struct {
	Year       int    `form:"year"        binding:"required,min=2000,max=2100"`
	Month      int    `form:"month"       binding:"required,min=1,max=12"`
	EmployeeID string `form:"employee_id"`
}

// AttendanceResponse 考勤记录响应
type AttendanceResponse struct {
	ID              string  `json:"id"`
	EmployeeID      string  `json:"employee_id"`
	Date            string  `json:"date"`
	Time            string  `json:"time"`
	Kind            string  `json:"kind"`
	Status          string  `json:"status"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
	EmployeeName    *string `json:"employee_name,omitempty"`
	ValidatedAt     *string `json:"validated_at,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	RetryCount      int     `json:"retry_count"`
	Version         int     `json:"version"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// AttendanceStatsResponse 按状态统计
type AttendanceStatsResponse struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Validated int64 `json:"validated"`
	Rejected  int64 `json:"rejected"`
}

// WorkingHoursResponse 工作时间窗口及当前时间
type WorkingHoursResponse struct {
	Start              string `json:"start"`
	End                string `json:"end"`
	CurrentTime        string `json:"current_time"`
	WithinWorkingHours bool   `json:"within_working_hours"`
}

// DailySummary 单个员工单日汇总（仅统计 validated 记录）
type DailySummary struct {
	EmployeeID    string `json:"employee_id"`
	Date          string `json:"date"`
	Entries       int    `json:"entries"`
	Exits         int    `json:"exits"`
	FirstEntry    string `json:"first_entry,omitempty"`
	LastExit      string `json:"last_exit,omitempty"`
	WorkedMinutes int    `json:"worked_minutes"`
}

// MonthlyAttendanceResponse 月度考勤
type MonthlyAttendanceResponse struct {
	Year    int                  `json:"year"`
	Month   int                  `json:"month"`
	Total   int                  `json:"total"`
	Days    []DailySummary       `json:"days"`
	Records []AttendanceResponse `json:"records"`
}

// DeleteByEmployeeResponse 按员工批量删除结果
type DeleteByEmployeeResponse struct {
	EmployeeID string `json:"employee_id"`
	Deleted    int64  `json:"deleted"`
}
