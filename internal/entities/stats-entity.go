package entities

// OrderStats - сводка для /stats.
type OrderStats struct {
	Total                int64                `json:"total"`
	ByStatus             map[string]int64     `json:"by_status"`
	ByTechnician         []TechnicianWorkload `json:"by_technician"`
	Revenue              float64              `json:"revenue"`
	AvgCompletionSeconds float64              `json:"avg_completion_seconds"`
}

type TechnicianWorkload struct {
	TechnicianID int64   `json:"technician_id"`
	Name         string  `json:"name"`
	Active       int64   `json:"active"`
	Completed    int64   `json:"completed"`
	Revenue      float64 `json:"revenue"`
}
