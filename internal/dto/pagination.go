package dto

// 考勤列表分页边界；员工列表数据量小，不分页
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// PaginationRequest 列表查询的 ?page=&page_size=，均可省略
type PaginationRequest struct {
	Page     int `form:"page"      binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=200"`
}

// GetPage 页码，从 1 开始
func (p PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 每页条数。未经绑定校验直接构造的请求同样截断到 MaxPageSize
func (p PaginationRequest) GetPageSize() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	}
	return p.PageSize
}

// Window 换算成仓储查询的 offset / limit
func (p PaginationRequest) Window() (offset, limit int) {
	limit = p.GetPageSize()
	return (p.GetPage() - 1) * limit, limit
}
