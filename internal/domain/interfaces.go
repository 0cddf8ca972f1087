package domain

// ConfigManager provides access to application configuration
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetDatabaseConfig() *DatabaseConfig
	GetRemoteAPIConfig() *RemoteAPIConfig
	GetHistoryConfig() *HistoryConfig
	Validate() error
}
