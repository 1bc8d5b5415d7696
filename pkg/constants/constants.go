// pkg/constants/constants.go
package constants

import "strings"

//============== CACHE ==============

// CacheType - тип сущности в read-through кеше. Для каждого типа свой TTL.
type CacheType string

const (
	CacheOrders      CacheType = "orders"
	CacheUsers       CacheType = "users"
	CacheTechnicians CacheType = "technicians"
	CacheAssignments CacheType = "assignments"
	CacheStats       CacheType = "stats"
)

var AllCacheTypes = []CacheType{CacheOrders, CacheUsers, CacheTechnicians, CacheAssignments, CacheStats}

// Префиксы для ключей в Redis/кеше.
const (
	// Формат: cache:<type>:<key> -> JSON снимок сущности
	CacheKeyEntity = "cache:%s:%s"

	// Формат: conv_state:<userID> -> JSON состояния диалога
	CacheKeyConversationState = "conv_state:%d"
)

//============== LIMITS ==============

const (
	MinPhoneDigits        = 7
	MinNameLength         = 3
	MinAddressLength      = 5
	MinProblemLength      = 10
	MaxTextLength         = 1000
	MaxOrdersPerPage      = 10
	MaxActivityLogPerPage = 20

	// Telegram не принимает сообщения длиннее 4096 символов.
	MaxMessageLength = 4096
)

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
