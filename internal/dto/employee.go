package dto

// ── 员工模块 DTO ──

// CreateEmployeeRequest 创建员工请求
type CreateEmployeeRequest struct {
	Name       string   `json:"name"        binding:"required,min=2,max=100"`
	Email      string   `json:"email"       binding:"required,email,max=150"`
	NationalID string   `json:"national_id" binding:"required,min=5,max=20"`
	Phone      *string  `json:"phone"       binding:"omitempty,max=20"`
	Position   *string  `json:"position"    binding:"omitempty,max=100"`
	Salary     *float64 `json:"salary"      binding:"omitempty,gte=0"`
	HiredOn    *string  `json:"hired_on"` // YYYY-MM-DD
}

// UpdateEmployeeRequest 更新员工请求
type UpdateEmployeeRequest struct {
	Name       *string  `json:"name"        binding:"omitempty,min=2,max=100"`
	Email      *string  `json:"email"       binding:"omitempty,email,max=150"`
	NationalID *string  `json:"national_id" binding:"omitempty,min=5,max=20"`
	Phone      *string  `json:"phone"       binding:"omitempty,max=20"`
	Position   *string  `json:"position"    binding:"omitempty,max=100"`
	Salary     *float64 `json:"salary"      binding:"omitempty,gte=0"`
	HiredOn    *string  `json:"hired_on"`
}

// EmployeeResponse 员工信息响应
type EmployeeResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	NationalID    string   `json:"national_id"`
	Phone         *string  `json:"phone,omitempty"`
	Position      *string  `json:"position,omitempty"`
	Salary        *float64 `json:"salary,omitempty"`
	HiredOn       *string  `json:"hired_on,omitempty"`
	Active        bool     `json:"active"`
	DeactivatedAt *string  `json:"deactivated_at,omitempty"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}
