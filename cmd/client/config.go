package main

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerURL string `envconfig:"NEXCHAT_SERVER_URL" default:"http://localhost:8080"`
	Token     string `envconfig:"NEXCHAT_TOKEN"`
	// NEXCHAT_COLOURS enables colorized output
	Colours  bool   `envconfig:"NEXCHAT_COLOURS" default:"true"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
