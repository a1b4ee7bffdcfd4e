package dto

type Pagination struct {
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Offset   int  `json:"offset"`
	HasNext  bool `json:"has_next"`
}

func NewPagination(limit, offset, total int) *Pagination {
	if limit < 1 {
		limit = 1
	}
	if offset < 0 {
		offset = 0
	}
	return &Pagination{
		Total:    total,
		Page:     offset/limit + 1,
		PageSize: limit,
		Offset:   offset,
		HasNext:  offset+limit < total,
	}
}
