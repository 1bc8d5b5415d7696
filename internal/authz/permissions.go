// internal/authz/permissions.go
package authz

import "repair-desk/pkg/constants"

// --- СПИСОК ВСЕХ ПЕРМИШЕНОВ В СИСТЕМЕ ---
// Формат "объект:действие". Объект и действие уходят в casbin раздельно.

const (
	// Заявки
	OrdersCreate         = "orders:create"
	OrdersViewAll        = "orders:view_all"
	OrdersViewOwn        = "orders:view_own"
	OrdersAssign         = "orders:assign"
	OrdersWork           = "orders:work"
	OrdersCancel         = "orders:cancel"
	OrdersServiceDetails = "orders:service_details"
	OrdersDelete         = "orders:delete"

	// Пользователи
	UsersView   = "users:view"
	UsersManage = "users:manage"
	UsersDelete = "users:delete"

	TechniciansView = "technicians:view"

	// Журнал, статистика, отчёты
	ActivityView  = "activity:view"
	StatsView     = "stats:view"
	ReportsExport = "reports:export"

	// Шаблоны проблем
	TemplatesView   = "templates:view"
	TemplatesManage = "templates:manage"

	// Всё разрешено
	Superuser = "*:*"
)

// DefaultPolicy - таблица роль -> права. Администратору разрешено всё.
var DefaultPolicy = map[constants.Role][]string{
	constants.RoleClient: {
		OrdersCreate,
		OrdersViewOwn,
		TemplatesView,
	},
	constants.RoleDispatcher: {
		OrdersCreate,
		OrdersViewAll,
		OrdersViewOwn,
		OrdersAssign,
		OrdersCancel,
		OrdersServiceDetails,
		TechniciansView,
		TemplatesView,
		StatsView,
	},
	constants.RoleTechnician: {
		OrdersViewOwn,
		OrdersWork,
		OrdersServiceDetails,
		TemplatesView,
	},
	constants.RoleAdmin: {
		Superuser,
	},
}
