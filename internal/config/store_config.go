package config

import "time"

const (
	StoreBackendMemory = "memory"
	StoreBackendSQLite = "sqlite"
	StoreBackendRedis  = "redis"
)

type StoreConfig interface {
	GetStoreBackend() string
	GetSQLitePath() string
	GetRedisAddr() string
	GetStoreTimeout() time.Duration
}

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetStoreBackend() string {
	return GetEnv("STORE_BACKEND", StoreBackendMemory)
}

func (Store) GetSQLitePath() string {
	return GetEnv("SQLITE_PATH", "./data/tokens.db")
}

func (Store) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Store) GetStoreTimeout() time.Duration {
	return durationEnv("STORE_TIMEOUT", 5*time.Second)
}
