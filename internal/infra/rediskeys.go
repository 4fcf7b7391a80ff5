package infra

import "fmt"

const (
	// RedisNamespace префикс ключей и каналов дашборда в общем Redis
	RedisNamespace = "perfdash"
)

// Каналы Pub/Sub
const (
	// RedisChanNavigation смена параметров маршрута между репликами
	RedisChanNavigation = RedisNamespace + ":charts:navigation"
)

// NavigationChannel канал навигации, при заданном env свой для окружения.
func NavigationChannel(env string) string {
	if env == "" {
		return RedisChanNavigation
	}
	return fmt.Sprintf("%s:%s", RedisChanNavigation, env)
}
