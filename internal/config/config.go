package config

type Config interface {
	EnvConfig
	ClientConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetDataFolder() string
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
	Client
	Storage
}

func New() Config {
	return mainConfig{}
}
