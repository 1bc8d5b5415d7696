package constants

// Role - роль пользователя бота.
type Role string

const (
	RoleClient     Role = "client"
	RoleDispatcher Role = "dispatcher"
	RoleTechnician Role = "technician"
	RoleAdmin      Role = "admin"
)

var AllRoles = []Role{RoleClient, RoleDispatcher, RoleTechnician, RoleAdmin}

var RoleLabels = map[Role]string{
	RoleClient:     "Клиент",
	RoleDispatcher: "Диспетчер",
	RoleTechnician: "Мастер",
	RoleAdmin:      "Администратор",
}

func (r Role) String() string { return string(r) }

func (r Role) Label() string {
	if l, ok := RoleLabels[r]; ok {
		return l
	}
	return string(r)
}

func (r Role) IsValid() bool {
	_, ok := RoleLabels[r]
	return ok
}

// ParseRole принимает код роли или её русскую подпись (без учёта регистра).
func ParseRole(s string) (Role, bool) {
	for _, r := range AllRoles {
		if equalFold(string(r), s) || equalFold(r.Label(), s) {
			return r, true
		}
	}
	return "", false
}
