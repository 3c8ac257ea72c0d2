package config

import "time"

type Config struct {
	Service     *ServiceConfig
	Postgres    *PostgresConfig
	Redis       *RedisConfig
	Tracer      *TracerConfig
	Logger      *LoggerConfig
	Presence    *PresenceConfig
	Push        *PushConfig
	Worker      *WorkerConfig
	SecretToken string
}

type ServiceConfig struct {
	Name string
	Env  string
	Addr string
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PingTimeout  time.Duration
}

type TracerConfig struct {
	Address string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type PresenceConfig struct {
	// DebounceWindow delays the offline broadcast after the last session
	// disconnects, absorbing transient reconnects.
	DebounceWindow time.Duration
	// OnlineTTL bounds how stale a Redis presence entry may be before
	// readers treat the user as offline.
	OnlineTTL time.Duration
}

type PushConfig struct {
	// GatewayURL receives best-effort offline-notification webhooks.
	GatewayURL string
	Timeout    time.Duration
}

type WorkerConfig struct {
	NotifyStream string
	NotifyGroup  string
}
