package config

type Config interface {
	EnvConfig
	TokenConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Token
	Store
}

func New() Config {
	return mainConfig{}
}
