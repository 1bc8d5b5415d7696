package constants

// ActionType - закрытый словарь действий журнала активности.
type ActionType string

const (
	ActionUserCreate        ActionType = "user_create"
	ActionRoleChange        ActionType = "role_change"
	ActionUserDelete        ActionType = "user_delete"
	ActionOrderCreate       ActionType = "order_create"
	ActionOrderAssign       ActionType = "order_assign"
	ActionStatusUpdate      ActionType = "status_update"
	ActionCostUpdate        ActionType = "cost_update"
	ActionDescriptionUpdate ActionType = "description_update"
	ActionOrderDelete       ActionType = "order_delete"
	ActionTemplateCreate    ActionType = "template_create"
	ActionReportExport      ActionType = "report_export"
)

var AllActionTypes = []ActionType{
	ActionUserCreate, ActionRoleChange, ActionUserDelete,
	ActionOrderCreate, ActionOrderAssign, ActionStatusUpdate,
	ActionCostUpdate, ActionDescriptionUpdate, ActionOrderDelete,
	ActionTemplateCreate, ActionReportExport,
}

func (a ActionType) IsValid() bool {
	for _, t := range AllActionTypes {
		if t == a {
			return true
		}
	}
	return false
}
