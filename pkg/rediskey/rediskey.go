package rediskey

import "fmt"

// User lookup keys (global convention across services)
const (
	UserPrefix         = "user"
	ReferralCodePrefix = "user:code"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildUserIDKey returns "user:{userID}"
func BuildUserIDKey(userID string) string {
	return NamespaceKey(UserPrefix, userID)
}

// BuildReferralCodeKey returns "user:code:{code}"
func BuildReferralCodeKey(code string) string {
	return NamespaceKey(ReferralCodePrefix, code)
}
