package internal

import (
	"chat-notify/errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// inTempDir keeps LoadConfig away from any notify.yaml or .env in the package directory.
func inTempDir(t *testing.T) string {
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadConfig_Yaml_Then_Env(t *testing.T) {
	req := require.New(t)
	dir := inTempDir(t)

	// Given a YAML file
	path := filepath.Join(dir, "custom.yaml")
	req.NoError(os.WriteFile(path, []byte(`
port: 7000
db_url: postgres://localhost/chat
auth_pk: /etc/notify/public.pem
keep_alive_interval: 3s
bus_overflow_policy: drop_oldest
`), 0o600))
	t.Setenv("NOTIFY_CONFIG", path)

	// And an environment override
	t.Setenv("PORT", "7100")
	t.Setenv("SESSION_BUFFER_SIZE", "8")

	// When the configuration is loaded
	config, err := LoadConfig()
	req.NoError(err)

	// Then the environment wins over the file, and the file over defaults
	req.Equal(7100, config.Port)
	req.Equal(8, config.SessionBufferSize)
	req.Equal("postgres://localhost/chat", config.DatabaseURL)
	req.Equal(3*time.Second, config.KeepAliveInterval)
	req.Equal("drop_oldest", config.BusOverflowPolicy)
	req.Equal(6688, config.GrpcPort)
	req.Equal([]string{"notify_event", "chat_updated", "chat_message_created"}, config.Channels())
}

func TestLoadConfig_Default_Path(t *testing.T) {
	req := require.New(t)
	dir := inTempDir(t)
	req.NoError(os.WriteFile(filepath.Join(dir, "notify.yaml"), []byte(`
store_driver: badger
auth_pk: public.pem
`), 0o600))

	config, err := LoadConfig()

	req.NoError(err)
	req.Equal(StoreDriverBadger, config.StoreDriver)
	req.Empty(config.DatabaseURL)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		c := DefaultConfig()
		c.DatabaseURL = "postgres://localhost/chat"
		c.AuthPublicKeyPath = "public.pem"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"Valid", func(c *Config) {}, false},
		{"Postgres without url", func(c *Config) { c.DatabaseURL = "" }, true},
		{"Badger without url", func(c *Config) { c.DatabaseURL = ""; c.StoreDriver = StoreDriverBadger }, false},
		{"Unknown driver", func(c *Config) { c.StoreDriver = "mysql" }, true},
		{"Unknown policy", func(c *Config) { c.BusOverflowPolicy = "drop_newest" }, true},
		{"Zero buffer", func(c *Config) { c.SessionBufferSize = 0 }, true},
		{"Max below initial", func(c *Config) { c.ReconnectMaxInterval = time.Millisecond }, true},
		{"Blank channels", func(c *Config) { c.FeedChannels = " , " }, true},
		{"Missing key", func(c *Config) { c.AuthPublicKeyPath = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				req.ErrorIs(err, errors.ErrInvalidConfig)
			} else {
				req.NoError(err)
			}
		})
	}
}
