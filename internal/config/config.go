package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is read from PARLEY_-prefixed environment variables.
type Config struct {
	Port            int           `envconfig:"PORT" default:"8080"`
	DataDir         string        `envconfig:"DATA_DIR" default:"data/messages"`
	UploadDir       string        `envconfig:"UPLOAD_DIR" default:"data/uploads"`
	StaticDir       string        `envconfig:"STATIC_DIR" default:"web/static"`
	PingInterval    time.Duration `envconfig:"PING_INTERVAL" default:"30s"`
	SendBufferSize  int           `envconfig:"SEND_BUFFER_SIZE" default:"256"`
	EventBufferSize int           `envconfig:"EVENT_BUFFER_SIZE" default:"100"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
}

func Load() (Config, error) {
	var c Config
	err := envconfig.Process("parley", &c)
	return c, err
}
