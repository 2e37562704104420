package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer HTTPServer    `yaml:"http_server"`
	PostgreSQL PostgreConfig `yaml:"postgresql"`
	AMQP       AMQPConfig    `yaml:"amqp"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"5s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

type PostgreConfig struct {
	Host     string `yaml:"host" env:"PG_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"PG_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"PG_USER" env-default:"postgres"`
	Password string `yaml:"password" env:"PG_PASSWORD" env-default:""`
	DBName   string `yaml:"dbname" env:"PG_DBNAME" env-default:"subtrack"`
	SSLMode  string `yaml:"sslmode" env:"PG_SSLMODE" env-default:"disable"`
}

// AMQPConfig points at the broker the external reminder delivery worker
// consumes from. An empty URL disables reminder scheduling.
type AMQPConfig struct {
	URL      string `yaml:"url" env:"AMQP_URL" env-default:""`
	Exchange string `yaml:"exchange" env:"AMQP_EXCHANGE" env-default:"subtrack.reminders"`
}

func MustLoad() *Config {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			log.Fatalf("failed to read config from environment: %v", err)
		}
		return &cfg
	}

	if _, err := os.Stat(path); err != nil {
		log.Fatalf("config file does not exist: %s", path)
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		log.Fatalf("failed to read config %s: %v", path, err)
	}

	return &cfg
}
