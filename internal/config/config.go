package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/quikmile/gps-ingester/internal/protocol"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

type Config struct {
	Service ServiceConfig `koanf:"service"`
	Kafka   KafkaConfig   `koanf:"kafka"`
	Server  ServerConfig  `koanf:"server"`
}

type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

type KafkaConfig struct {
	Brokers   []string   `koanf:"brokers"`
	ClientID  string     `koanf:"client_id"`
	TLS       TLSConfig  `koanf:"tls"`
	SASL      SASLConfig `koanf:"sasl"`
	QueueSize int        `koanf:"queue_size"`
}

type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

type ServerConfig struct {
	BindAddress     string   `koanf:"bind_address"`
	Protocols       []string `koanf:"protocols"`
	ReadBufferBytes int      `koanf:"read_buffer_bytes"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load YAML file first.
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: GPS_INGESTER_KAFKA__BROKERS → kafka.brokers
	if err := k.Load(env.Provider("GPS_INGESTER_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "GPS_INGESTER_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			InstanceID:             "gps-ingester-1",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Kafka: KafkaConfig{
			Brokers:   []string{"localhost:9092"},
			ClientID:  "gps-ingester",
			QueueSize: 1024,
		},
		Server: ServerConfig{
			BindAddress:     "0.0.0.0",
			Protocols:       protocolNames(),
			ReadBufferBytes: 4096,
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Split comma-separated env strings for slice fields.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	if len(cfg.Server.Protocols) == 1 && strings.Contains(cfg.Server.Protocols[0], ",") {
		cfg.Server.Protocols = strings.Split(cfg.Server.Protocols[0], ",")
	}

	// The original deployment configured the broker via KAFKA_BROKER;
	// keep honoring it when nothing more specific was given.
	if !k.Exists("kafka.brokers") {
		if legacy := os.Getenv("KAFKA_BROKER"); legacy != "" {
			cfg.Kafka.Brokers = strings.Split(legacy, ",")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func protocolNames() []string {
	var names []string
	for _, p := range protocol.All() {
		names = append(names, p.Name)
	}
	return names
}

func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers is required")
	}
	if c.Kafka.ClientID == "" {
		return fmt.Errorf("config: kafka.client_id is required")
	}
	if c.Kafka.QueueSize <= 0 {
		return fmt.Errorf("config: kafka.queue_size must be > 0 (got %d)", c.Kafka.QueueSize)
	}
	if len(c.Server.Protocols) == 0 {
		return fmt.Errorf("config: server.protocols is required")
	}
	for _, name := range c.Server.Protocols {
		if _, ok := protocol.Lookup(name); !ok {
			return fmt.Errorf("config: server.protocols: unknown protocol %q", name)
		}
	}
	if c.Server.BindAddress == "" {
		return fmt.Errorf("config: server.bind_address is required")
	}
	if c.Server.ReadBufferBytes <= 0 {
		return fmt.Errorf("config: server.read_buffer_bytes must be > 0 (got %d)", c.Server.ReadBufferBytes)
	}
	if c.Service.HTTPListen == "" {
		return fmt.Errorf("config: service.http_listen is required")
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	return nil
}

// BuildTLSConfig creates a *tls.Config from the Kafka TLS settings. Returns nil if TLS is disabled.
func (k *KafkaConfig) BuildTLSConfig() (*tls.Config, error) {
	if !k.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if k.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(k.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if k.TLS.CertFile != "" && k.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(k.TLS.CertFile, k.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the Kafka SASL settings. Returns nil if SASL is disabled.
func (k *KafkaConfig) BuildSASLMechanism() sasl.Mechanism {
	if !k.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(k.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: k.SASL.Username, Pass: k.SASL.Password}.AsMechanism()
	default:
		return nil
	}
}
