package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	S3       S3Config       `mapstructure:"s3"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

type S3Config struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	BucketName      string        `mapstructure:"bucket_name"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
}

// Enabled reports whether enough S3 settings are present to build a client.
func (c S3Config) Enabled() bool {
	return c.BucketName != ""
}

// JWTConfig holds the secret used to verify bearer tokens issued by the identity provider.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// UploadConfig is the deployment-time validation policy plus staging settings.
type UploadConfig struct {
	MaxBytes           int64         `mapstructure:"max_bytes"`
	AllowedTypes       []string      `mapstructure:"allowed_types"`
	AllowedExtensions  []string      `mapstructure:"allowed_extensions"`
	StagingBackend     string        `mapstructure:"staging_backend"` // disk, memory or s3
	StagingDir         string        `mapstructure:"staging_dir"`     // empty means os.TempDir()
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Mode  string `mapstructure:"mode"` // "release" for JSON production output
}

// defaultPresignExpiry matches storage.DefaultPresignedURLExpiry, which applies when s3.presign_expiry is zero.
const defaultPresignExpiry = 15 * time.Minute

// Staging backends understood by UploadConfig.StagingBackend.
const (
	StagingBackendDisk   = "disk"
	StagingBackendMemory = "memory"
	StagingBackendS3     = "s3"
)

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// server.address -> SERVER_ADDRESS, upload.max_bytes -> UPLOAD_MAX_BYTES
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	v.SetDefault("server.address", ":8080")
	// Large uploads need far more than the usual 10s.
	v.SetDefault("server.read_timeout", "15m")
	v.SetDefault("server.write_timeout", "15m")
	v.SetDefault("server.idle_timeout", "2m")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "fight_gateway")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("s3.presign_expiry", "15m")
	// No default: the deployment must supply the identity provider's signing secret.
	v.SetDefault("jwt.secret", "")
	v.SetDefault("upload.max_bytes", 500*1024*1024)
	v.SetDefault("upload.allowed_types", []string{"video/mp4", "video/quicktime", "video/x-msvideo"})
	v.SetDefault("upload.allowed_extensions", []string{"mp4", "mov", "avi"})
	v.SetDefault("upload.staging_backend", StagingBackendDisk)
	v.SetDefault("upload.staging_dir", "")
	v.SetDefault("upload.session_idle_timeout", "30m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.mode", "debug")

	err = v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		// No file: defaults and env vars only.
		err = nil
	} else if err != nil {
		return
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}

	if err = config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret must be set")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive, got %d", c.Upload.MaxBytes)
	}
	if len(c.Upload.AllowedTypes) == 0 && len(c.Upload.AllowedExtensions) == 0 {
		return errors.New("upload.allowed_types and upload.allowed_extensions are both empty")
	}
	switch c.Upload.StagingBackend {
	case StagingBackendDisk, StagingBackendMemory:
	case StagingBackendS3:
		if !c.S3.Enabled() {
			return errors.New("upload.staging_backend is s3 but s3.bucket_name is not set")
		}
	default:
		return fmt.Errorf("unknown upload.staging_backend %q", c.Upload.StagingBackend)
	}
	// A presigned URL must expire before its session can be reaped, or an object
	// uploaded after the reap would never be released.
	presignExpiry := c.S3.PresignExpiry
	if presignExpiry <= 0 {
		presignExpiry = defaultPresignExpiry
	}
	if c.S3.Enabled() && c.Upload.SessionIdleTimeout > 0 && presignExpiry >= c.Upload.SessionIdleTimeout {
		return fmt.Errorf("s3.presign_expiry (%s) must be shorter than upload.session_idle_timeout (%s)",
			presignExpiry, c.Upload.SessionIdleTimeout)
	}
	return nil
}
