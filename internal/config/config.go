package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clearcut-studio/studio-server/internal/templates"
	"github.com/clearcut-studio/studio-server/internal/utils/pathutil"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	FilesystemLocal = "local"
	FilesystemS3    = "s3"
)

const envPrefix = "STUDIO"

type Config struct {
	Port        int           `mapstructure:"port"`
	Host        string        `mapstructure:"host"`
	Environment string        `mapstructure:"environment"`
	StudioHome  string        `mapstructure:"studio_home"`
	AssetsDir   string        `mapstructure:"assets_dir"`
	TempDir     string        `mapstructure:"temp_dir"`
	PublicDir   string        `mapstructure:"public_dir"`
	ServerURL   string        `mapstructure:"server_url"`
	Filesystem  string        `mapstructure:"filesystem_type"`
	S3          *S3Config     `mapstructure:"s3"`
	DB          DBConfig      `mapstructure:"db"`
	Pulsar      *PulsarConfig `mapstructure:"pulsar"`
	Disk        DiskConfig    `mapstructure:"disk"`
	OpenAI      *OpenAIConfig `mapstructure:"openai"`
	Seal        string        `mapstructure:"seal_passphrase"`
}

// SealPassphrase is the passphrase credentials are sealed with at rest.
// A fixed fallback keeps the single-user desktop flow working out of the
// box; set STUDIO_SEAL_PASSPHRASE to override it.
func (c *Config) SealPassphrase() string {
	if c.Seal != "" {
		return c.Seal
	}
	return "clearcut-studio-local"
}

type S3Config struct {
	Folder      string `mapstructure:"folder"`
	Region      string `mapstructure:"region_name"`
	Bucket      string `mapstructure:"bucket_name"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	EndpointUrl string `mapstructure:"endpoint_url"`
	VanityUrl   string `mapstructure:"vanity_url"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type PulsarConfig struct {
	URL string `mapstructure:"url"`
}

// DiskConfig holds the server-side Yandex Disk token. When a request
// carries no token the proxy falls back to this one.
type DiskConfig struct {
	Token string `mapstructure:"token"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
}

var config *Config

func LoadEnvAndConfigFiles() error {
	studioHome, err := getStudioHome()
	if err != nil {
		return err
	}

	assetsDir, err := getSubDir(studioHome, "assets_dir", "assets")
	if err != nil {
		return err
	}

	tempDir, err := getSubDir(studioHome, "temp_dir", "temp")
	if err != nil {
		return err
	}

	viper.Set("studio_home", studioHome)
	viper.Set("assets_dir", assetsDir)
	viper.Set("temp_dir", tempDir)

	envFile := viper.GetString("env_file")
	if envFile == "" {
		envFile = filepath.Join(studioHome, ".env")
	}

	configFile := viper.GetString("config_file")
	if configFile == "" {
		configFile = filepath.Join(studioHome, "config.yaml")
	}

	if _, err := os.Stat(envFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat .env file: %w", err)
		}

		if err := os.MkdirAll(filepath.Dir(envFile), 0o755); err != nil {
			return fmt.Errorf("failed to create home directory: %w", err)
		}

		if err := templates.WriteEnv(envFile); err != nil {
			return fmt.Errorf("failed to create .env file: %w", err)
		}
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	if _, err := os.Stat(configFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config.yaml file: %w", err)
		}

		if err := templates.WriteConfig(configFile); err != nil {
			return fmt.Errorf("failed to create config.yaml file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))
	viper.SetConfigFile(configFile)

	if err := LoadConfig(false); err != nil {
		if errors.As(err, &viper.ConfigFileNotFoundError{}) {
			fmt.Println("No config file found. Using default config.")
		} else {
			return err
		}
	}

	return nil
}

func LoadConfig(reload bool) error {
	if config != nil && !reload {
		return fmt.Errorf("config already loaded")
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}

	config = &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}

	return nil
}

func GetConfig() *Config {
	if config == nil {
		panic("config not loaded")
	}

	return config
}

func IsLoaded() bool {
	return config != nil
}

// Returns the studio home directory path, in order of preference:
// the `studio_home` viper key, the STUDIO_HOME environment variable,
// then the default.
func getStudioHome() (string, error) {
	studioHome := viper.GetString("studio_home")
	if studioHome == "" {
		studioHome = os.Getenv("STUDIO_HOME")
		if studioHome == "" {
			studioHome = DefaultStudioHome
		}
	}

	studioHome, err := pathutil.ExpandPath(studioHome)
	if err != nil {
		return "", ErrHomeExpandFailed
	}

	return studioHome, nil
}

func getSubDir(studioHome, key, fallback string) (string, error) {
	if studioHome == "" {
		return "", ErrHomeNotSet
	}

	dir := viper.GetString(key)
	if dir == "" {
		dir = filepath.Join(studioHome, fallback)
	}

	dir, err := pathutil.ExpandPath(dir)
	if err != nil {
		return "", ErrHomeExpandFailed
	}

	return dir, nil
}
