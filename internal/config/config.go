package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue/cuecontext"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Index backend types.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	// BackendKafkaMaster stores the index like BackendBadger (or in memory
	// without a path) and also applies updates published by other cluster
	// members on the feed topic.
	BackendKafkaMaster = "kafka-master"
)

// Rebuild policies for the index at startup.
const (
	RebuildNever     = "never"
	RebuildIfMissing = "if_missing"
	RebuildAlways    = "always"
)

// Defaults.
const (
	DefaultSystemWorkspace = "system"
	DefaultPoolSize        = 2
	DefaultStopGrace       = time.Minute
	DefaultMaxIterations   = 1000
)

// Config is the repository configuration.
type Config struct {
	Name            string   `yaml:"name" json:"name" validate:"required"`
	SystemWorkspace string   `yaml:"systemWorkspace" json:"systemWorkspace"`
	Workspaces      []string `yaml:"workspaces" json:"workspaces" validate:"dive,required"`
	Storage         Storage  `yaml:"storage" json:"storage"`
	Indexing        Indexing `yaml:"indexing" json:"indexing"`
	Query           Query    `yaml:"query" json:"query"`
	Reindex         Reindex  `yaml:"reindex" json:"reindex"`
	Feed            *Feed    `yaml:"feed" json:"feed"`
}

// Storage locates the content graph. An empty Path means an in-memory graph.
type Storage struct {
	Path       string            `yaml:"path" json:"path"`
	Properties map[string]string `yaml:"properties" json:"properties"`
}

// Indexing configures the index backend and the startup rebuild.
type Indexing struct {
	Backend          Backend `yaml:"backend" json:"backend"`
	RebuildOnStartup string  `yaml:"rebuildOnStartup" json:"rebuildOnStartup" validate:"omitempty,oneof=never if_missing always"`
	IncludeSystem    bool    `yaml:"includeSystem" json:"includeSystem"`
	Async            bool    `yaml:"async" json:"async"`
}

// Backend names the index backend. Properties are passed to it unread,
// except "path" and "inMemory" for the badger and kafka-master types.
type Backend struct {
	Type       string            `yaml:"type" json:"type" validate:"required,oneof=memory badger kafka-master"`
	Properties map[string]string `yaml:"properties" json:"properties"`
}

// Path returns the "path" property.
func (b Backend) Path() string {
	return b.Properties["path"]
}

// InMemory reports whether the "inMemory" property is "true".
func (b Backend) InMemory() bool {
	return b.Properties["inMemory"] == "true"
}

// Query tunes query compilation.
type Query struct {
	MaxIterations              int  `yaml:"maxIterations" json:"maxIterations" validate:"gte=0"`
	QualifyExpandedColumnNames bool `yaml:"qualifyExpandedColumnNames" json:"qualifyExpandedColumnNames"`
	ShowPlan                   bool `yaml:"showPlan" json:"showPlan"`
}

// Reindex tunes asynchronous reindexing.
type Reindex struct {
	PoolSize  int    `yaml:"poolSize" json:"poolSize" validate:"gte=0"`
	StopGrace string `yaml:"stopGrace" json:"stopGrace"`
}

// Grace parses StopGrace. An empty value means DefaultStopGrace.
func (r Reindex) Grace() (time.Duration, error) {
	if r.StopGrace == "" {
		return DefaultStopGrace, nil
	}
	d, err := time.ParseDuration(r.StopGrace)
	if err != nil {
		return 0, fmt.Errorf("reindex.stopGrace: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("reindex.stopGrace: must not be negative")
	}
	return d, nil
}

// Feed configures the remote indexing feed consumed by a kafka-master backend.
type Feed struct {
	Brokers       []string `yaml:"brokers" json:"brokers" validate:"required,min=1,dive,required"`
	Topic         string   `yaml:"topic" json:"topic" validate:"required"`
	ConsumerGroup string   `yaml:"consumerGroup" json:"consumerGroup" validate:"required"`
	FromBeginning bool     `yaml:"fromBeginning" json:"fromBeginning"`
	SASLUsername  string   `yaml:"saslUsername" json:"saslUsername"`
	SASLPassword  string   `yaml:"saslPassword" json:"saslPassword"`
	SASLMechanism string   `yaml:"saslMechanism" json:"saslMechanism" validate:"omitempty,oneof=PLAIN SCRAM-SHA-256 SCRAM-SHA-512"`
}

var validate = validator.New()

// Default returns a configuration for an in-memory repository with one
// "default" workspace.
func Default() *Config {
	cfg := &Config{
		Name:       "arbor",
		Workspaces: []string{"default"},
		Indexing:   Indexing{Backend: Backend{Type: BackendMemory}},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.SystemWorkspace == "" {
		c.SystemWorkspace = DefaultSystemWorkspace
	}
	if c.Indexing.Backend.Type == "" {
		c.Indexing.Backend.Type = BackendMemory
	}
	if c.Indexing.RebuildOnStartup == "" {
		c.Indexing.RebuildOnStartup = RebuildIfMissing
	}
	if c.Query.MaxIterations == 0 {
		c.Query.MaxIterations = DefaultMaxIterations
	}
	if c.Reindex.PoolSize == 0 {
		c.Reindex.PoolSize = DefaultPoolSize
	}
}

// Validate checks struct tags and the rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Indexing.Backend.Type == BackendKafkaMaster && c.Feed == nil {
		return errors.New("invalid config: indexing backend kafka-master requires feed settings")
	}
	if b := c.Indexing.Backend; b.Type == BackendBadger && b.Path() == "" && !b.InMemory() {
		return errors.New("invalid config: indexing backend badger requires a path property")
	}
	for _, ws := range c.Workspaces {
		if ws == c.SystemWorkspace {
			return fmt.Errorf("invalid config: workspace %q is the system workspace", ws)
		}
	}
	if _, err := c.Reindex.Grace(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads a YAML (.yaml, .yml) or CUE (.cue) configuration file, fills
// defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = ParseYAML(data)
	case ".cue":
		cfg, err = ParseCUE(data, path)
	default:
		return nil, fmt.Errorf("config %s: unsupported extension (want .yaml, .yml or .cue)", path)
	}
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseYAML decodes YAML strictly: unknown fields are errors.
func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}
	return &cfg, nil
}

// ParseCUE evaluates a CUE document and decodes it into a Config.
func ParseCUE(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("parse cue config %s: %w", filename, err)
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("parse cue config %s: %w", filename, err)
	}
	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode cue config %s: %w", filename, err)
	}
	return &cfg, nil
}
