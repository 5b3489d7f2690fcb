// Package config loads engine configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/relaydesk/knowledge-engine/internal/answer"
	"github.com/relaydesk/knowledge-engine/internal/chunker"
	"github.com/relaydesk/knowledge-engine/internal/embedding"
	"github.com/relaydesk/knowledge-engine/internal/index"
	"github.com/relaydesk/knowledge-engine/internal/retrieval"
)

// Index backend selectors.
const (
	IndexMemory = "memory"
	IndexQdrant = "qdrant"
)

// defaultLocations are tried in order when no path is given.
var defaultLocations = []string{
	"config.yaml",
	"config/config.yaml",
}

type EmbeddingConfig struct {
	Model        string `yaml:"model"`
	Dimension    int    `yaml:"dimension"`
	BatchSize    int    `yaml:"batch_size"`
	CacheEnabled bool   `yaml:"cache_enabled"`
}

type GenerationConfig struct {
	Model            string `yaml:"model"`
	MaxContextTokens int    `yaml:"max_context_tokens"`
	MaxOutputTokens  int    `yaml:"max_output_tokens"`
}

type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

type IndexConfig struct {
	Type   string       `yaml:"type"`
	Qdrant QdrantConfig `yaml:"qdrant"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type Config struct {
	Chunking   chunker.Config   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Index      IndexConfig      `yaml:"index"`
	Retrieval  retrieval.Config `yaml:"retrieval"`
	Server     ServerConfig     `yaml:"server"`
}

// Load reads configuration from path. An empty path tries the default
// locations and falls back to built-in defaults when no file exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if data != nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return data, nil
	}
	for _, candidate := range defaultLocations {
		data, err := os.ReadFile(candidate)
		if err == nil {
			return data, nil
		}
	}
	return nil, nil
}

// applyEnv overlays deployment settings that usually come from the
// environment rather than the config file.
func (c *Config) applyEnv() {
	if host := os.Getenv("QDRANT_HOST"); host != "" {
		c.Index.Qdrant.Host = host
	}
	if port := os.Getenv("QDRANT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Index.Qdrant.Port = p
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Embedding.Model == "" {
		c.Embedding.Model = embedding.DefaultModel
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = embedding.DefaultDimension
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = embedding.DefaultBatchSize
	}
	if c.Generation.Model == "" {
		c.Generation.Model = answer.DefaultModel
	}
	if c.Index.Type == "" {
		c.Index.Type = IndexQdrant
	}
	if c.Index.Qdrant.Host == "" {
		c.Index.Qdrant.Host = "localhost"
	}
	if c.Index.Qdrant.Port == 0 {
		c.Index.Qdrant.Port = 6334
	}
	if c.Index.Qdrant.Collection == "" {
		c.Index.Qdrant.Collection = index.DefaultCollection
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
}

func (c *Config) Validate() error {
	if c.Index.Type != IndexMemory && c.Index.Type != IndexQdrant {
		return fmt.Errorf("index.type must be %q or %q, got %q", IndexMemory, IndexQdrant, c.Index.Type)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	// chunker.New performs the full chunking validation.
	if _, err := chunker.New(c.Chunking); err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	return nil
}
