package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/stmtimport/internal/logging"
	"github.com/cleared-dev/stmtimport/internal/source"
	"github.com/cleared-dev/stmtimport/internal/statement"
	"github.com/cleared-dev/stmtimport/internal/store"
)

// FileName is the default configuration file name.
const FileName = "stmtimport.yaml"

// Environment variables that override file values.
const (
	EnvDatabaseURL   = "DATABASE_URL"
	EnvListenAddress = "LISTEN_ADDRESS"
	EnvPort          = "PORT"
	EnvLogLevel      = "STMTIMPORT_LOG_LEVEL"
)

// Config represents the top-level stmtimport.yaml configuration.
type Config struct {
	Statement StatementConfig `yaml:"statement"`
	Server    ServerConfig    `yaml:"server"`
	Storage   store.Conf      `yaml:"storage"`
	Import    ImportConfig    `yaml:"import"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   logging.Conf    `yaml:"logging"`
}

// StatementConfig describes the export format.
type StatementConfig struct {
	PreambleLines  int    `yaml:"preamble_lines"`
	HasHeader      bool   `yaml:"has_header"`
	Encoding       string `yaml:"encoding"` // IANA name
	FieldDelimiter string `yaml:"field_delimiter"`
	TagDelimiter   string `yaml:"tag_delimiter"`
	DateLayout     string `yaml:"date_layout"` // Go time layout
}

// ServerConfig controls the HTTP transport.
type ServerConfig struct {
	ListenAddress string `yaml:"listen_address"`
	Port          int    `yaml:"port"`
	MaxBodyBytes  int64  `yaml:"max_body_bytes"`
}

// ImportConfig controls which files `ingest --dir` picks up from import/.
type ImportConfig struct {
	Extensions []string `yaml:"extensions"` // matched case-insensitively
}

// AuditConfig locates the rejection audit file. An empty path disables it.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// Load reads a stmtimport.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config for the current export format.
func Default() *Config {
	return &Config{
		Statement: StatementConfig{
			PreambleLines:  statement.DefaultPreambleLines,
			HasHeader:      true,
			Encoding:       "windows-1252",
			FieldDelimiter: string(statement.DefaultFieldDelimiter),
			TagDelimiter:   string(statement.DefaultTagDelimiter),
			DateLayout:     statement.DefaultDateLayout,
		},
		Server: ServerConfig{
			ListenAddress: "localhost",
			Port:          8080,
			MaxBodyBytes:  32 << 20,
		},
		Storage: store.Conf{
			Driver:    store.DriverPostgres,
			ChunkSize: store.DefaultChunkSize,
		},
		Import: ImportConfig{
			Extensions: slices.Clone(source.DefaultExtensions),
		},
		Audit: AuditConfig{
			Path: "logs/rejections.csv",
		},
		Logging: logging.Conf{
			Level: "info",
		},
	}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvDatabaseURL); v != "" {
		c.Storage.DSN = v
	}
	if v := getenv(EnvListenAddress); v != "" {
		c.Server.ListenAddress = v
	}
	if v := getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", EnvPort, v, err)
		}
		c.Server.Port = port
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	s := c.Statement
	if s.PreambleLines < 0 {
		errs = append(errs, fmt.Errorf("statement.preamble_lines must not be negative, got %d", s.PreambleLines))
	}
	if _, err := lookupEncoding(s.Encoding); err != nil {
		errs = append(errs, err)
	}
	if utf8.RuneCountInString(s.FieldDelimiter) != 1 {
		errs = append(errs, fmt.Errorf("statement.field_delimiter must be one character, got %q", s.FieldDelimiter))
	}
	if utf8.RuneCountInString(s.TagDelimiter) != 1 {
		errs = append(errs, fmt.Errorf("statement.tag_delimiter must be one character, got %q", s.TagDelimiter))
	}
	if s.FieldDelimiter == s.TagDelimiter {
		errs = append(errs, fmt.Errorf("statement.tag_delimiter must differ from field_delimiter"))
	}
	if strings.TrimSpace(s.DateLayout) == "" {
		errs = append(errs, fmt.Errorf("statement.date_layout must be set"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be positive"))
	}
	for _, ext := range c.Import.Extensions {
		if len(ext) < 2 || !strings.HasPrefix(ext, ".") || strings.ContainsAny(ext, `/\`) {
			errs = append(errs, fmt.Errorf("import.extensions: %q is not a file extension like .csv", ext))
		}
	}
	switch c.Storage.Driver {
	case store.DriverPostgres, store.DriverMySQL:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn must be set for driver %s (or %s)", c.Storage.Driver, EnvDatabaseURL))
		}
	case store.DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of postgres, mysql, memory", c.Storage.Driver))
	}
	return errors.Join(errs...)
}

// StatementOptions converts the statement section to decoder options.
func (c *Config) StatementOptions() (statement.Options, error) {
	s := c.Statement
	enc, err := lookupEncoding(s.Encoding)
	if err != nil {
		return statement.Options{}, err
	}
	field, _ := utf8.DecodeRuneInString(s.FieldDelimiter)
	tag, _ := utf8.DecodeRuneInString(s.TagDelimiter)
	return statement.Options{
		PreambleLines:  s.PreambleLines,
		HasHeader:      s.HasHeader,
		Encoding:       enc,
		FieldDelimiter: field,
		TagDelimiter:   tag,
		DateLayout:     s.DateLayout,
	}, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("statement.encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("statement.encoding %q is not supported", name)
	}
	return enc, nil
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.ListenAddress, c.Server.Port)
}
