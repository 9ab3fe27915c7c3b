package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// NOTIFY_URL points at a server running with the embedded store. Empty skips the suite.
	URL      string `envconfig:"NOTIFY_URL"`
	GrpcAddr string `envconfig:"NOTIFY_GRPC_ADDR" default:"localhost:6688"`
	// NOTIFY_SIGNING_KEY is the private half of the server's AUTH_PUBLIC_KEY_PATH
	SigningKey string `envconfig:"NOTIFY_SIGNING_KEY" default:"./test_data/private.pem"`
	Issuer     string `envconfig:"NOTIFY_ISSUER" default:"chat_server"`
	Audience   string `envconfig:"NOTIFY_AUDIENCE" default:"chat_web"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
