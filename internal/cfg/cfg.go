// Package cfg loads the service settings. Values come from a YAML file named
// by CONFIG_FILE when set, otherwise from environment variables; environment
// variables always override the file, and an optional .env file is read
// first. Every failure wraps common.ErrConfiguration.
package cfg

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"credit-scorer/internal/common"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	ModelPath       string        `validate:"required"`
	DataPath        string        `validate:"required"`
	ListenPort      int           `validate:"min=1,max=65535"`
	MetricsPort     int           `validate:"min=0,max=65535"` // 0 disables the metrics server
	LogLevel        string        `validate:"oneof=trace debug info warn error"`
	LogFormat       string        `validate:"oneof=console json"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	ClientTimeout   time.Duration `validate:"gt=0"`
	APIURL          string        `validate:"required,url"`
}

type ConfigFile struct {
	Model struct {
		Path string `yaml:"path"`
	} `yaml:"model"`

	Data struct {
		Path string `yaml:"path"`
	} `yaml:"data"`

	Server struct {
		ListenPort      int    `yaml:"listenPort"`
		MetricsPort     *int   `yaml:"metricsPort"`
		ReadTimeout     string `yaml:"readTimeout"`
		WriteTimeout    string `yaml:"writeTimeout"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Client struct {
		APIURL  string `yaml:"apiURL"`
		Timeout string `yaml:"timeout"`
	} `yaml:"client"`
}

var validate = validator.New()

func Load() (Settings, error) {
	// a missing .env file is not an error
	_ = godotenv.Load()

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: failed to read config file %s: %w", common.ErrConfiguration, path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("%w: failed to parse config file: %w", common.ErrConfiguration, err)
	}

	metricsPort := common.DefaultMetricsPort
	if config.Server.MetricsPort != nil {
		metricsPort = *config.Server.MetricsPort
	}

	return build(defaults{
		modelPath:       orDefault(config.Model.Path, common.DefaultModelPath),
		dataPath:        orDefault(config.Data.Path, common.DefaultDataPath),
		listenPort:      orDefaultInt(config.Server.ListenPort, common.DefaultListenPort),
		metricsPort:     metricsPort,
		logLevel:        orDefault(config.Log.Level, common.DefaultLogLevel),
		logFormat:       orDefault(config.Log.Format, common.DefaultLogFormat),
		readTimeout:     orDefault(config.Server.ReadTimeout, common.DefaultReadTimeout),
		writeTimeout:    orDefault(config.Server.WriteTimeout, common.DefaultWriteTimeout),
		shutdownTimeout: orDefault(config.Server.ShutdownTimeout, common.DefaultShutdownTimeout),
		clientTimeout:   orDefault(config.Client.Timeout, common.DefaultClientTimeout),
		apiURL:          orDefault(config.Client.APIURL, common.DefaultAPIURL),
	})
}

func loadFromEnv() (Settings, error) {
	return build(defaults{
		modelPath:       common.DefaultModelPath,
		dataPath:        common.DefaultDataPath,
		listenPort:      common.DefaultListenPort,
		metricsPort:     common.DefaultMetricsPort,
		logLevel:        common.DefaultLogLevel,
		logFormat:       common.DefaultLogFormat,
		readTimeout:     common.DefaultReadTimeout,
		writeTimeout:    common.DefaultWriteTimeout,
		shutdownTimeout: common.DefaultShutdownTimeout,
		clientTimeout:   common.DefaultClientTimeout,
		apiURL:          common.DefaultAPIURL,
	})
}

// defaults are the values the environment may override.
type defaults struct {
	modelPath, dataPath     string
	listenPort, metricsPort int
	logLevel, logFormat     string
	readTimeout             string
	writeTimeout            string
	shutdownTimeout         string
	clientTimeout           string
	apiURL                  string
}

func build(d defaults) (Settings, error) {
	var errs []error
	intVal := func(key string, def int) int {
		v, err := getIntOrDefault(key, def)
		errs = append(errs, err)
		return v
	}
	durVal := func(key, def string) time.Duration {
		v, err := getDurationOrDefault(key, def)
		errs = append(errs, err)
		return v
	}

	settings := Settings{
		ModelPath:       getEnvOrDefault(common.EnvModelPath, d.modelPath),
		DataPath:        getEnvOrDefault(common.EnvDataPath, d.dataPath),
		ListenPort:      intVal(common.EnvListenPort, d.listenPort),
		MetricsPort:     intVal(common.EnvMetricsPort, d.metricsPort),
		LogLevel:        strings.ToLower(getEnvOrDefault(common.EnvLogLevel, d.logLevel)),
		LogFormat:       strings.ToLower(getEnvOrDefault(common.EnvLogFormat, d.logFormat)),
		ReadTimeout:     durVal(common.EnvReadTimeout, d.readTimeout),
		WriteTimeout:    durVal(common.EnvWriteTimeout, d.writeTimeout),
		ShutdownTimeout: durVal(common.EnvShutdownTimeout, d.shutdownTimeout),
		ClientTimeout:   durVal(common.EnvClientTimeout, d.clientTimeout),
		APIURL:          getEnvOrDefault(common.EnvAPIURL, d.apiURL),
	}
	if err := errors.Join(errs...); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", common.ErrConfiguration, err)
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("%w: configuration validation failed: %w", common.ErrConfiguration, err)
	}
	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return i, nil
}

func getDurationOrDefault(key, defaultValue string) (time.Duration, error) {
	v := getEnvOrDefault(key, defaultValue)
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

// validateSettings checks struct tags and the cross-field rules tags cannot
// express.
func validateSettings(settings *Settings) error {
	if err := validate.Struct(settings); err != nil {
		return err
	}

	if settings.MetricsPort != 0 && settings.MetricsPort == settings.ListenPort {
		return fmt.Errorf("metrics port must differ from listen port %d", settings.ListenPort)
	}

	for name, d := range map[string]time.Duration{
		"read timeout":     settings.ReadTimeout,
		"write timeout":    settings.WriteTimeout,
		"shutdown timeout": settings.ShutdownTimeout,
		"client timeout":   settings.ClientTimeout,
	} {
		if d < 100*time.Millisecond || d > 5*time.Minute {
			return fmt.Errorf("%s must be between 100ms and 5m, got %v", name, d)
		}
	}

	return nil
}
