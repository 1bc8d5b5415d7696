package constants

// OrderStatus - статус заявки в жизненном цикле ремонта.
type OrderStatus string

// --- СТАТУСЫ ЗАЯВОК (совпадают со значениями в БД) ---
const (
	StatusNew        OrderStatus = "new"
	StatusAssigned   OrderStatus = "assigned"
	StatusInProgress OrderStatus = "in_progress"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

// AllStatuses - канонический порядок статусов (используется в статистике и отчётах).
var AllStatuses = []OrderStatus{
	StatusNew,
	StatusAssigned,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
}

// Финальные статусы
var FinalStatuses = []OrderStatus{
	StatusCompleted,
	StatusCancelled,
}

// StatusLabels - подписи статусов для пользователя.
var StatusLabels = map[OrderStatus]string{
	StatusNew:        "🆕 Новая",
	StatusAssigned:   "👨‍🔧 Назначена",
	StatusInProgress: "⏳ В работе",
	StatusCompleted:  "✅ Выполнена",
	StatusCancelled:  "❌ Отменена",
}

func (s OrderStatus) String() string { return string(s) }

// Label возвращает подпись статуса, для неизвестных - сам код.
func (s OrderStatus) Label() string {
	if l, ok := StatusLabels[s]; ok {
		return l
	}
	return string(s)
}

func (s OrderStatus) IsValid() bool {
	_, ok := StatusLabels[s]
	return ok
}

// IsFinal - из финального статуса переходов нет.
func (s OrderStatus) IsFinal() bool {
	for _, f := range FinalStatuses {
		if f == s {
			return true
		}
	}
	return false
}

// statusGraph - допустимые рёбра переходов. Отмена разрешена из любого нефинального статуса.
var statusGraph = map[OrderStatus][]OrderStatus{
	StatusNew:        {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanTransition проверяет, есть ли ребро from -> to в графе статусов.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range statusGraph[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowsServiceDetails - стоимость и описание работ можно задавать только после начала работ.
func (s OrderStatus) AllowsServiceDetails() bool {
	return s == StatusInProgress || s == StatusCompleted
}
