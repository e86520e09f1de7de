package config

const (
	namespaceVar   = "STITCH_NAMESPACE"
	storageKindVar = "STITCH_STORAGE"
	redisAddrVar   = "REDIS_ADDR"
)

// Storage backends understood by GetStorageKind
const (
	StorageBolt   = "bolt"
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

type StorageConfig interface {
	GetNamespace() string
	GetStorageKind() string
	GetRedisAddr() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetNamespace isolates the keys of one client from others sharing the same backend.
// Defaults to the app ID.
func (Storage) GetNamespace() string {
	return GetEnv(namespaceVar, Client{}.GetAppID())
}

func (Storage) GetStorageKind() string {
	switch kind := GetEnv(storageKindVar, StorageBolt); kind {
	case StorageMemory, StorageRedis:
		return kind
	default:
		return StorageBolt
	}
}

func (Storage) GetRedisAddr() string {
	return GetEnv(redisAddrVar, "localhost:6379")
}
