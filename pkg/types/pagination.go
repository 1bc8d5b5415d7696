package types

type Pagination struct {
	TotalCount uint64 `json:"total_count"`
	Page       uint64 `json:"page"`
	Limit      uint64 `json:"limit"`
}

func (p Pagination) Pages() uint64 {
	if p.Limit == 0 || p.TotalCount == 0 {
		return 1
	}
	return (p.TotalCount + p.Limit - 1) / p.Limit
}

func (p Pagination) HasNext() bool {
	return p.Page < p.Pages()
}
