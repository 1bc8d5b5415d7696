package constants

// ConversationStep - шаг многошагового диалога.
type ConversationStep string

const (
	StepNone ConversationStep = ""

	// Приём заявки
	StepAwaitingPhone   ConversationStep = "awaiting_phone"
	StepAwaitingName    ConversationStep = "awaiting_name"
	StepAwaitingAddress ConversationStep = "awaiting_address"
	StepAwaitingProblem ConversationStep = "awaiting_problem"

	// Результат работ
	StepAwaitingCost        ConversationStep = "awaiting_cost"
	StepAwaitingDescription ConversationStep = "awaiting_description"

	// Смена роли
	StepAwaitingRoleUser ConversationStep = "awaiting_role_user"
	StepAwaitingRoleName ConversationStep = "awaiting_role_name"
)
