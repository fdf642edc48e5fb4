package internal

import (
	"chat-relay/errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

type Config struct {
	Host            string        `env:"HOST"`
	Port            int           `env:"PORT,default=9000" validate:"gte=0,lte=65535"`
	HealthPort      int           `env:"HEALTH_PORT,default=9001" validate:"gte=0,lte=65535"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO" validate:"required"`
	MaxLineBytes    int           `env:"MAX_LINE_BYTES,default=65536" validate:"gte=256"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gte=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=30s" validate:"gte=0"`
	CensoredWords   string        `env:"CENSORED_WORDS"`
	CharReplacement string        `env:"CHARACTER_REPLACEMENT,default=*"`
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	if err := validate.Struct(config); err != nil {
		return Config{}, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	if _, err := CharacterRune(config.CharReplacement); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HealthAddress is empty when the health endpoint is disabled.
func (c Config) HealthAddress() string {
	if c.HealthPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.HealthPort))
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"%w: CHARACTER_REPLACEMENT must be a single character, got %q",
			errors.ErrInvalidConfig, str,
		)
	}
	return r[0], nil
}
