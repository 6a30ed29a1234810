package redisx

import "fmt"

const ns = "tickethub:v1"

// KeyRateLimitPrefix is the limiter key prefix for a scope; the limiter
// appends the caller identity.
func KeyRateLimitPrefix(scope string) string {
	return fmt.Sprintf("%s:rl:%s", ns, scope)
}

func ChannelInventoryChanged() string {
	return ns + ":inventory:changed"
}
