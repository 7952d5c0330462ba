package pkgconfig

// Config is the read surface the application depends on. Implementations
// decide where values come from; callers only name keys.
type Config interface {
	GetInt(key string) int64
	GetBool(key string) bool
	GetFloat(key string) float64
	GetString(key string) string
	GetBinary(key string) []byte
	GetArray(key string) []string
	GetMap(key string) map[string]string

	// Close releases any resources held by the implementation.
	Close() error
}
