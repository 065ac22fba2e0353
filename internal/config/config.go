package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config estructura principal de configuración
type Config struct {
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Asterisk AsteriskConfig `yaml:"asterisk"`
	Trunks   []TrunkConfig  `yaml:"trunks"`
	Dialer   DialerConfig   `yaml:"dialer"`
	AMI      AMIConfig      `yaml:"ami"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Log      LogConfig      `yaml:"log"`
}

type APIConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	EnableCORS bool   `yaml:"enable_cors"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // mysql | sqlite
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	Path         string `yaml:"path"` // solo sqlite
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type AsteriskConfig struct {
	Originate    string `yaml:"originate"` // spool | ami
	SpoolDir     string `yaml:"spool_dir"`
	StagingDir   string `yaml:"staging_dir"`
	SignalDir    string `yaml:"signal_dir"`
	WritebackDir string `yaml:"writeback_dir"`
	Tech         string `yaml:"tech"`
	DialPrefix   string `yaml:"dial_prefix"`
	Context      string `yaml:"context"`
	WaitTime     int    `yaml:"wait_time"`
}

// TrunkConfig describe una troncal y cuántos canales simultáneos admite
type TrunkConfig struct {
	ID       string `yaml:"id"`
	Channels int    `yaml:"channels"`
}

type DialerConfig struct {
	RetryInterval    time.Duration `yaml:"retry_interval"`
	StaleCallTimeout time.Duration `yaml:"stale_call_timeout"`
	EventBuffer      int           `yaml:"event_buffer"`
}

type AMIConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	Username          string `yaml:"username"`
	Secret            string `yaml:"secret"`
	ReconnectInterval int    `yaml:"reconnect_interval"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load carga la configuración desde archivo YAML
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error leyendo archivo de configuración: %w", err)
	}
	return Parse(data)
}

// Parse interpreta el YAML, aplica variables de entorno y valores por defecto
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parseando YAML: %w", err)
	}

	// Permitir sobrescribir con variables de entorno
	if err := overrideWithEnv(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envOverrides variables de entorno que pisan el archivo YAML
type envOverrides struct {
	APIHost     string   `env:"AUTODIALER_API_HOST"`
	APIPort     int      `env:"AUTODIALER_API_PORT"`
	DBDriver    string   `env:"AUTODIALER_DB_DRIVER"`
	DBHost      string   `env:"AUTODIALER_DB_HOST"`
	DBPort      int      `env:"AUTODIALER_DB_PORT"`
	DBUsername  string   `env:"AUTODIALER_DB_USERNAME"`
	DBPassword  string   `env:"AUTODIALER_DB_PASSWORD"`
	DBDatabase  string   `env:"AUTODIALER_DB_DATABASE"`
	DBPath      string   `env:"AUTODIALER_DB_PATH"`
	AMIEnabled  bool     `env:"AUTODIALER_AMI_ENABLED"`
	AMIHost     string   `env:"AUTODIALER_AMI_HOST"`
	AMIUsername string   `env:"AUTODIALER_AMI_USERNAME"`
	AMISecret   string   `env:"AUTODIALER_AMI_SECRET"`
	Brokers     []string `env:"AUTODIALER_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic  string   `env:"AUTODIALER_KAFKA_TOPIC"`
	LogLevel    string   `env:"AUTODIALER_LOG_LEVEL"`
}

// overrideWithEnv permite sobrescribir configuración con variables de entorno
func overrideWithEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("error leyendo variables de entorno: %w", err)
	}

	setString(&cfg.API.Host, o.APIHost)
	setInt(&cfg.API.Port, o.APIPort)
	setString(&cfg.Database.Driver, o.DBDriver)
	setString(&cfg.Database.Host, o.DBHost)
	setInt(&cfg.Database.Port, o.DBPort)
	setString(&cfg.Database.Username, o.DBUsername)
	setString(&cfg.Database.Password, o.DBPassword)
	setString(&cfg.Database.Database, o.DBDatabase)
	setString(&cfg.Database.Path, o.DBPath)
	if o.AMIEnabled {
		cfg.AMI.Enabled = true
	}
	setString(&cfg.AMI.Host, o.AMIHost)
	setString(&cfg.AMI.Username, o.AMIUsername)
	setString(&cfg.AMI.Secret, o.AMISecret)
	if len(o.Brokers) > 0 {
		cfg.Kafka.Brokers = o.Brokers
	}
	setString(&cfg.Kafka.Topic, o.KafkaTopic)
	setString(&cfg.Log.Level, o.LogLevel)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// Default devuelve la configuración por defecto (3 troncales x 2 canales, SQLite local)
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults completa los campos omitidos
func (c *Config) ApplyDefaults() {
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 3000
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Path == "" {
		c.Database.Path = "autodialer.db"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}

	if c.Asterisk.Originate == "" {
		c.Asterisk.Originate = "spool"
	}
	if c.Asterisk.SpoolDir == "" {
		c.Asterisk.SpoolDir = "./call"
	}
	if c.Asterisk.StagingDir == "" {
		c.Asterisk.StagingDir = c.Asterisk.SpoolDir + "/.staging"
	}
	if c.Asterisk.SignalDir == "" {
		c.Asterisk.SignalDir = c.Asterisk.SpoolDir
	}
	if c.Asterisk.Tech == "" {
		c.Asterisk.Tech = "SIP"
	}
	if c.Asterisk.DialPrefix == "" {
		c.Asterisk.DialPrefix = "2"
	}
	if c.Asterisk.Context == "" {
		c.Asterisk.Context = "llamada_automatica"
	}
	if c.Asterisk.WaitTime == 0 {
		c.Asterisk.WaitTime = 45
	}

	if len(c.Trunks) == 0 {
		c.Trunks = []TrunkConfig{
			{ID: "204", Channels: 2},
			{ID: "205", Channels: 2},
			{ID: "206", Channels: 2},
		}
	}

	if c.Dialer.RetryInterval == 0 {
		c.Dialer.RetryInterval = 5 * time.Second
	}
	if c.Dialer.EventBuffer == 0 {
		c.Dialer.EventBuffer = 10000
	}

	if c.AMI.Port == 0 {
		c.AMI.Port = 5038
	}
	if c.AMI.ReconnectInterval == 0 {
		c.AMI.ReconnectInterval = 5
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "autodialer.calls"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate rechaza configuraciones de troncales inconsistentes
func (c *Config) Validate() error {
	if len(c.Trunks) == 0 {
		return errors.New("config: se requiere al menos una troncal")
	}
	seen := make(map[string]bool, len(c.Trunks))
	for _, t := range c.Trunks {
		if t.ID == "" {
			return errors.New("config: troncal sin id")
		}
		if t.Channels <= 0 {
			return fmt.Errorf("config: troncal %s sin canales", t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("config: troncal %s duplicada", t.ID)
		}
		seen[t.ID] = true
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("config: driver de base de datos desconocido %q", c.Database.Driver)
	}
	switch c.Asterisk.Originate {
	case "spool":
	case "ami":
		if !c.AMI.Enabled {
			return errors.New("config: originate=ami requiere ami.enabled")
		}
	default:
		return fmt.Errorf("config: modo de originación desconocido %q", c.Asterisk.Originate)
	}
	return nil
}

// Capacity devuelve el total de canales (troncales x canales)
func (c *Config) Capacity() int {
	total := 0
	for _, t := range c.Trunks {
		total += t.Channels
	}
	return total
}

// Debug indica si se deben emitir trazas detalladas
func (l LogConfig) Debug() bool {
	return l.Level == "debug"
}

// Address devuelve la dirección completa del servidor API
func (a APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Address devuelve la dirección completa del servidor AMI
func (a AMIConfig) Address() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// DSN devuelve el Data Source Name según el driver
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&clientFoundRows=true",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}
