package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Store     StoreConfig
	Call      CallConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

type StoreConfig struct {
	// Backend selects the message store: "mongo" or "memory".
	Backend  string        `mapstructure:"backend"`
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type CallConfig struct {
	// OfferTimeout tears down an unanswered call. Zero disables the timer.
	OfferTimeout time.Duration `mapstructure:"offerTimeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}
