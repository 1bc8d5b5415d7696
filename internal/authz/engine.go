package authz

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"repair-desk/pkg/constants"
)

// Субъект - роль, объект и действие - половинки пермишена. "*" в политике подходит к чему угодно.
const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

func subject(role constants.Role) string {
	return "role:" + string(role)
}

// splitPermission: "orders:create" -> ("orders", "create").
func splitPermission(permission string) (string, string, error) {
	obj, act, ok := strings.Cut(permission, ":")
	if !ok || obj == "" || act == "" {
		return "", "", fmt.Errorf("некорректный пермишен %q", permission)
	}
	return obj, act, nil
}

// NewEnforcer собирает enforcer из таблицы роль -> права. Политики живут в памяти.
func NewEnforcer(policy map[constants.Role][]string) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}

	var rules [][]string
	for role, perms := range policy {
		if !role.IsValid() {
			return nil, fmt.Errorf("неизвестная роль в таблице прав: %q", role)
		}
		for _, p := range perms {
			obj, act, err := splitPermission(p)
			if err != nil {
				return nil, err
			}
			rules = append(rules, []string{subject(role), obj, act})
		}
	}
	if len(rules) > 0 {
		if _, err := enforcer.AddPolicies(rules); err != nil {
			return nil, err
		}
	}
	return enforcer, nil
}
