package config

type StoreType string

const (
	MemoryStore   StoreType = "memory"
	FileStore     StoreType = "file"
	SQLiteStore   StoreType = "sqlite"
	RedisStore    StoreType = "redis"
	PostgresStore StoreType = "postgres"
)

type StoreConfig interface {
	GetStoreType() StoreType
	GetStoreSecret() string
	GetRedisAddr() string
	GetRedisPrefix() string
	GetPostgresDSN() string
}

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetStoreType() StoreType {
	return StoreType(GetEnv("DASH_STORE", string(FileStore)))
}

// GetStoreSecret is the passphrase for the file store. Empty stores plain JSON.
func (Store) GetStoreSecret() string {
	return GetEnv("DASH_STORE_SECRET", "")
}

func (Store) GetRedisAddr() string {
	return GetEnv("DASH_REDIS_ADDR", "localhost:6379")
}

func (Store) GetRedisPrefix() string {
	return GetEnv("DASH_REDIS_PREFIX", "dashctl:")
}

func (Store) GetPostgresDSN() string {
	return GetEnv("DASH_POSTGRES_DSN", "")
}
