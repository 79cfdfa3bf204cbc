package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Version is set during build via ldflags
var Version = "dev"

// Field corner constants
const (
	CornerBottomRight = "bottom-right"
	CornerBottomLeft  = "bottom-left"
	CornerTopRight    = "top-right"
	CornerTopLeft     = "top-left"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Lock     LockConfig     `mapstructure:"lock"`
	Document DocumentConfig `mapstructure:"document"`
	Signing  SigningConfig  `mapstructure:"signing"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Service  ServiceConfig  `mapstructure:"service"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LockConfig controls per queue item serialization
type LockConfig struct {
	TTL  time.Duration `mapstructure:"ttl_seconds"`  // How long a lock is held before it expires
	Wait time.Duration `mapstructure:"wait_seconds"` // How long to wait for a busy lock
}

type DocumentConfig struct {
	BasePath      string `mapstructure:"base_path"`      // Base path for documents
	PendingFolder string `mapstructure:"pending_folder"` // Folder for documents awaiting signatures
	SignedFolder  string `mapstructure:"signed_folder"`  // Folder for fully executed documents
	ArchiveFolder string `mapstructure:"archive_folder"` // Folder for superseded documents
	JournalFile   string `mapstructure:"journal_file"`   // Placement journal, relative to base path
}

type SigningConfig struct {
	ProviderName        string  `mapstructure:"provider_name"`
	CredentialDir       string  `mapstructure:"credential_dir"`
	PKCS12Password      string  `mapstructure:"pkcs12_password"`
	PreferredThumbprint string  `mapstructure:"preferred_thumbprint"`
	FieldWidth          float64 `mapstructure:"field_width"`
	FieldHeight         float64 `mapstructure:"field_height"`
	FieldMargin         float64 `mapstructure:"field_margin"`
	FieldCorner         string  `mapstructure:"field_corner"`   // bottom-right, bottom-left, top-right, top-left
	SignatureSize       int     `mapstructure:"signature_size"` // Bytes reserved for the CMS blob
}

// WebhookConfig controls outbound queue event notifications
type WebhookConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"` // HMAC key, requests are unsigned when empty
	Timeout      time.Duration `mapstructure:"timeout_seconds"`
}

// ServiceConfig describes the Windows service registration
type ServiceConfig struct {
	Name         string        `mapstructure:"name"`
	DisplayName  string        `mapstructure:"display_name"`
	Description  string        `mapstructure:"description"`
	RestartDelay time.Duration `mapstructure:"restart_delay_seconds"` // First restart after a crash; later ones back off
	StopTimeout  time.Duration `mapstructure:"stop_timeout_seconds"`  // Grace period for in-flight requests on stop
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"` // Also write to this file, needed when running as a service
}

func NewConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Enable environment variable override
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Convert lock durations to seconds
	cfg.Lock.TTL = cfg.Lock.TTL * time.Second
	cfg.Lock.Wait = cfg.Lock.Wait * time.Second
	cfg.Webhook.Timeout = cfg.Webhook.Timeout * time.Second
	cfg.Service.RestartDelay = cfg.Service.RestartDelay * time.Second
	cfg.Service.StopTimeout = cfg.Service.StopTimeout * time.Second

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills unset values
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "QualTrack Signing"
	}
	if c.App.Port == 0 {
		c.App.Port = 8085
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Lock.TTL <= 0 {
		c.Lock.TTL = 2 * time.Minute
	}
	if c.Lock.Wait <= 0 {
		c.Lock.Wait = 10 * time.Second
	}
	if c.Document.PendingFolder == "" {
		c.Document.PendingFolder = "pending"
	}
	if c.Document.SignedFolder == "" {
		c.Document.SignedFolder = "signed"
	}
	if c.Document.ArchiveFolder == "" {
		c.Document.ArchiveFolder = "archive"
	}
	if c.Document.JournalFile == "" {
		c.Document.JournalFile = ".placement-journal"
	}
	if c.Signing.ProviderName == "" {
		c.Signing.ProviderName = "LocalCertificateStore"
	}
	if c.Signing.FieldWidth <= 0 {
		c.Signing.FieldWidth = 200
	}
	if c.Signing.FieldHeight <= 0 {
		c.Signing.FieldHeight = 60
	}
	if c.Signing.FieldMargin <= 0 {
		c.Signing.FieldMargin = 36
	}
	if c.Signing.FieldCorner == "" {
		c.Signing.FieldCorner = CornerBottomRight
	}
	if c.Signing.SignatureSize <= 0 {
		c.Signing.SignatureSize = 16384
	}
	if c.Webhook.Timeout <= 0 {
		c.Webhook.Timeout = 10 * time.Second
	}
	if c.Service.Name == "" {
		c.Service.Name = "QualTrackSigning"
	}
	if c.Service.DisplayName == "" {
		c.Service.DisplayName = "QualTrack Signing Service"
	}
	if c.Service.Description == "" {
		c.Service.Description = "Routes qualification forms through their required signatures"
	}
	if c.Service.RestartDelay <= 0 {
		c.Service.RestartDelay = 5 * time.Second
	}
	if c.Service.StopTimeout <= 0 {
		c.Service.StopTimeout = 30 * time.Second
	}
}

// Defaults returns a configuration with every default applied, for tools
// that must work before config.yaml exists
func Defaults() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
