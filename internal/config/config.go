package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BRO3886/productsync/configs"
	"github.com/BRO3886/productsync/internal/types"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	DefaultPath = "configs/config.yaml"
	EnvPrefix   = "PRODUCTSYNC_"

	EngineElasticsearch = "elasticsearch"
	EngineOpensearch    = "opensearch"
	EngineBleve         = "bleve"

	PolicyLog        = "log"
	PolicyPropagate  = "propagate"
	PolicyDeadLetter = "deadletter"

	builtinPrefix = "builtin:"
)

type Trigger struct {
	Name    string `koanf:"name"`
	Path    string `koanf:"path"`
	Index   string `koanf:"index"`
	Mapping string `koanf:"mapping"`
}

type Config struct {
	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	} `koanf:"log"`
	Search struct {
		Engine             string   `koanf:"engine"`
		URLs               []string `koanf:"urls"`
		Username           string   `koanf:"username"`
		Password           string   `koanf:"password"`
		MaxRetries         int      `koanf:"max_retries"`
		RefreshPerSecond   float64  `koanf:"refresh_per_second"`
		CreateIndices      bool     `koanf:"create_indices"`
		BlevePath          string   `koanf:"bleve_path"`
		InsecureSkipVerify bool     `koanf:"insecure_skip_verify"`
	} `koanf:"search"`
	Sync struct {
		FailurePolicy string    `koanf:"failure_policy"`
		Triggers      []Trigger `koanf:"triggers"`
	} `koanf:"sync"`
	Kafka struct {
		Brokers []string `koanf:"brokers"`
		Topic   struct {
			Name              string `koanf:"name"`
			Partitions        int    `koanf:"partitions"`
			ReplicationFactor int    `koanf:"replication_factor"`
		} `koanf:"topic"`
		DeadLetterTopic string `koanf:"dead_letter_topic"`
		ConsumerGroup   string `koanf:"consumer_group"`
		Retry           struct {
			Max     int `koanf:"max"`
			Backoff int `koanf:"backoff"`
		} `koanf:"retry"`
	} `koanf:"kafka"`
	HTTP struct {
		Port string `koanf:"port"`
	} `koanf:"http"`
}

func defaults() map[string]any {
	return map[string]any{
		"log.level":                 "info",
		"log.format":                "json",
		"search.engine":             EngineElasticsearch,
		"search.urls":               []string{"http://localhost:9200"},
		"search.max_retries":        3,
		"search.refresh_per_second": 0,
		"search.create_indices":     true,
		"sync.failure_policy":       PolicyPropagate,
		"sync.triggers": []map[string]any{
			{"name": "OnNewPost", "path": "posts/{postId}", "index": "all_products", "mapping": builtinPrefix + "products"},
		},
		"kafka.brokers":                  []string{"localhost:9092"},
		"kafka.topic.name":               "product-notifications",
		"kafka.topic.partitions":         1,
		"kafka.topic.replication_factor": 1,
		"kafka.dead_letter_topic":        "product-notifications-dlq",
		"kafka.consumer_group":           "productsync",
		"kafka.retry.max":                3,
		"kafka.retry.backoff":            100,
		"http.port":                      "8080",
	}
}

// Load layers defaults, the YAML file, PRODUCTSYNC_* variables and the
// legacy ELASTICSEARCH_URL variable. An empty path falls back to CONFIG_FILE
// and then DefaultPath; only an explicitly requested file must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = os.Getenv("CONFIG_FILE")
		explicit = path != ""
	}
	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config %s: %w", path, err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}
	if url := os.Getenv("ELASTICSEARCH_URL"); url != "" {
		if err := k.Set("search.urls", strings.Split(url, ",")); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps PRODUCTSYNC_SEARCH__MAX_RETRIES to search.max_retries.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) Validate() error {
	switch c.Search.Engine {
	case EngineElasticsearch, EngineOpensearch:
		if len(c.Search.URLs) == 0 {
			return fmt.Errorf("search.urls is required for engine %s", c.Search.Engine)
		}
	case EngineBleve:
	default:
		return fmt.Errorf("unknown search engine: %q", c.Search.Engine)
	}
	if c.Search.RefreshPerSecond < 0 {
		return fmt.Errorf("search.refresh_per_second must not be negative")
	}

	if err := c.ValidatePolicy(c.Sync.FailurePolicy); err != nil {
		return err
	}
	if c.Kafka.Topic.Partitions < 1 || c.Kafka.Topic.ReplicationFactor < 1 {
		return fmt.Errorf("kafka.topic.partitions and kafka.topic.replication_factor must be at least 1")
	}

	if len(c.Sync.Triggers) == 0 {
		return fmt.Errorf("at least one sync trigger is required")
	}
	names := make(map[string]bool)
	for i, t := range c.Sync.Triggers {
		if t.Name == "" {
			return fmt.Errorf("sync.triggers[%d]: name is required", i)
		}
		if names[t.Name] {
			return fmt.Errorf("sync.triggers[%d]: duplicate name %q", i, t.Name)
		}
		names[t.Name] = true
		if t.Index == "" {
			return fmt.Errorf("sync.triggers[%d]: index is required", i)
		}
		if _, err := types.ParsePathTemplate(t.Path); err != nil {
			return fmt.Errorf("sync.triggers[%d]: %w", i, err)
		}
	}
	return nil
}

// ValidatePolicy checks that policy is known and that the rest of the
// config can serve it. Callers overriding sync.failure_policy use it too.
func (c *Config) ValidatePolicy(policy string) error {
	switch policy {
	case PolicyLog, PolicyPropagate:
	case PolicyDeadLetter:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.DeadLetterTopic == "" {
			return fmt.Errorf("failure policy %s needs kafka.brokers and kafka.dead_letter_topic", PolicyDeadLetter)
		}
	default:
		return fmt.Errorf("unknown failure policy: %q", policy)
	}
	return nil
}

// LoadMapping returns the index creation body for the trigger, or nil when
// the index relies on dynamic mapping.
func (t Trigger) LoadMapping() ([]byte, error) {
	switch {
	case t.Mapping == "":
		return nil, nil
	case strings.HasPrefix(t.Mapping, builtinPrefix):
		name := strings.TrimPrefix(t.Mapping, builtinPrefix)
		if name != "products" {
			return nil, fmt.Errorf("unknown builtin mapping: %q", name)
		}
		return configs.ProductsMapping, nil
	default:
		return os.ReadFile(t.Mapping)
	}
}
