package internal

import (
	"chat-relay/errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)
	for _, key := range []string{"HOST", "PORT", "HEALTH_PORT", "LOG_LEVEL", "MAX_LINE_BYTES",
		"WRITE_TIMEOUT", "SHUTDOWN_TIMEOUT", "RESTART_INTERVAL", "METRIC_INTERVAL",
		"CENSORED_WORDS", "CHARACTER_REPLACEMENT"} {
		t.Setenv(key, "")
		req.NoError(os.Unsetenv(key))
	}

	config, err := Load()
	req.NoError(err)
	req.Equal(9000, config.Port)
	req.Equal(":9000", config.Address())
	req.Equal(":9001", config.HealthAddress())
	req.Equal(65536, config.MaxLineBytes)
	req.Equal(10*time.Second, config.WriteTimeout)
	req.Equal(200*time.Millisecond, config.RestartInterval)
	req.Equal("*", config.CharReplacement)
}

func TestLoad_Overrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9100")
	t.Setenv("HEALTH_PORT", "0")
	t.Setenv("WRITE_TIMEOUT", "2s")
	t.Setenv("CENSORED_WORDS", "badger,snake")
	t.Setenv("CHARACTER_REPLACEMENT", "#")

	config, err := Load()
	req.NoError(err)
	req.Equal("127.0.0.1:9100", config.Address())
	req.Empty(config.HealthAddress())
	req.Equal(2*time.Second, config.WriteTimeout)
	req.Equal("badger,snake", config.CensoredWords)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "port out of range", key: "PORT", value: "70000"},
		{name: "tiny frames", key: "MAX_LINE_BYTES", value: "10"},
		{name: "replacement is not one rune", key: "CHARACTER_REPLACEMENT", value: "**"},
		{name: "not a number", key: "PORT", value: "nine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestCharacterRune(t *testing.T) {
	r, err := CharacterRune("€")
	require.NoError(t, err)
	require.Equal(t, '€', r)
}
