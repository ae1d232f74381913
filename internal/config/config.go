package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	Config struct {
		App     `yaml:"app"`
		HTTP    `yaml:"http"`
		GRPC    `yaml:"grpc"`
		Log     `yaml:"logger"`
		Storage `yaml:"storage"`
		PG      `yaml:"postgres"`
		Alarm   `yaml:"alarm"`
		Code    `yaml:"code"`
	}

	App struct {
		Env     string `yaml:"env"     env-default:"local" env:"APP_ENV"`
		Name    string `yaml:"name"    env-default:"alarmd"`
		Version string `yaml:"version" env-required:"true" env:"APP_VERSION"`
	}

	HTTP struct {
		IP              string        `yaml:"ip"               env-default:"0.0.0.0"`
		Port            string        `yaml:"port"             env-default:"8082"    env:"HTTP_PORT"`
		Timeout         time.Duration `yaml:"timeout"          env-default:"4s"`
		IdleTimout      time.Duration `yaml:"idle_timeout"     env-default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"5s"`
		CORS            struct {
			AllowedMethods     []string `yaml:"allowed_methods"`
			AllowedOrigins     []string `yaml:"allowed_origins"`
			AllowCredentials   bool     `yaml:"allow_credentials"`
			AllowedHeaders     []string `yaml:"allowed_headers"`
			OptionsPassthrough bool     `yaml:"options_passthrough"`
			ExposedHeaders     []string `yaml:"exposed_headers"`
			Debug              bool     `yaml:"debug"`
		} `yaml:"cors"`
	}

	// GRPC is the listener of the embedded code service. It is started only
	// when Enabled is set.
	GRPC struct {
		Enabled bool   `yaml:"enabled" env-default:"false" env:"GRPC_ENABLED"`
		IP      string `yaml:"ip"      env-default:"0.0.0.0"`
		Port    string `yaml:"port"    env-default:"30000"  env:"GRPC_PORT"`
	}

	Log struct {
		Level string `yaml:"log_level" env-default:"info" env:"LOG_LEVEL"`
	}

	Storage struct {
		URL string `yaml:"url" env-default:"memory://" env:"STORAGE_URL"`
	}

	PG struct {
		PoolMax      int           `yaml:"pool_max"      env-default:"2"`
		ConnAttempts int           `yaml:"conn_attempts" env-default:"10"`
		ConnTimeout  time.Duration `yaml:"conn_timeout"  env-default:"1s"`
	}

	Alarm struct {
		Timezone           string        `yaml:"timezone"             env-default:"Local" env:"ALARM_TIMEZONE"`
		Tolerance          time.Duration `yaml:"tolerance"            env-default:"2m"`
		InFlightTTL        time.Duration `yaml:"in_flight_ttl"        env-default:"5s"`
		InFlightCapacity   int           `yaml:"in_flight_capacity"   env-default:"256"`
		DefaultSound       string        `yaml:"default_sound"        env-default:"asset://sounds/alarm.mp3"`
		VibrationPatternMS []int         `yaml:"vibration_pattern_ms" env-default:"500,500"`
	}

	// Code configures dismissal code generation. An empty RemoteAddr keeps
	// generation local.
	Code struct {
		RemoteAddr string        `yaml:"remote_addr" env:"CODE_REMOTE_ADDR"`
		Timeout    time.Duration `yaml:"timeout"     env-default:"3s"`
		Latency    time.Duration `yaml:"latency"     env-default:"300ms"`
	}
)

const (
	EnvConfigPathName  = "CONFIG-PATH"
	FlagConfigPathName = "config"
)

var (
	configPath string
	instance   *Config
	once       sync.Once
)

// GetConfig returns app configs.
func GetConfig() *Config {
	once.Do(func() {
		flag.StringVar(
			&configPath,
			FlagConfigPathName,
			"./configs/config.yml",
			"this is app config file",
		)
		flag.Parse()

		log.Print("config init")

		if configPath == "" {
			configPath = os.Getenv(EnvConfigPathName)
		}

		if configPath == "" {
			log.Fatal("config path is required")
		}

		cfg, err := Load(configPath)
		if err != nil {
			helpText := "alarmd - Alarm Lifecycle & Dismissal Engine"
			help, _ := cleanenv.GetDescription(&Config{}, &helpText)
			log.Print(help)
			log.Fatal(err)
		}
		instance = cfg
	})
	return instance
}

// Load reads the config file at path, overridden by the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("config - Load: %w", err)
	}
	if _, err := cfg.Alarm.LoadLocation(); err != nil {
		return nil, fmt.Errorf("config - Load - alarm.timezone: %w", err)
	}
	return cfg, nil
}

// LoadLocation resolves the alarm timezone. Empty and "Local" mean the local
// zone.
func (a Alarm) LoadLocation() (*time.Location, error) {
	if a.Timezone == "" || a.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(a.Timezone)
}

// Location is LoadLocation for a config that already passed Load.
func (a Alarm) Location() *time.Location {
	loc, err := a.LoadLocation()
	if err != nil {
		return time.Local
	}
	return loc
}

func (a Alarm) VibrationPattern() []time.Duration {
	out := make([]time.Duration, 0, len(a.VibrationPatternMS))
	for _, ms := range a.VibrationPatternMS {
		out = append(out, time.Duration(ms)*time.Millisecond)
	}
	return out
}
