package utils

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// PageToLimitOffset переводит номер страницы (с 1) в limit/offset.
func PageToLimitOffset(page, limit uint64) (uint64, uint64) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if page == 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
