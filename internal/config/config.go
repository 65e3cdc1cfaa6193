// Package config loads pathwaydb settings from an optional YAML file with
// PATHWAYDB_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/guokai8/pathwaydb/internal/apperrors"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration. Environment variables override YAML values.
type Config struct {
	// CacheDir is the shared per-user cache root.
	CacheDir string `yaml:"cache_dir" env:"PATHWAYDB_CACHE_DIR" env-default:"~/.pathwaydb_cache"`
	// BundledDir holds read-only stores shipped with a distribution. Empty disables the bundled tier.
	BundledDir string `yaml:"bundled_dir" env:"PATHWAYDB_BUNDLED_DIR" env-default:""`

	Log     LogConfig     `yaml:"log"`
	HTTP    HTTPConfig    `yaml:"http"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Enrich  EnrichConfig  `yaml:"enrich"`
	Sources SourcesConfig `yaml:"sources"`
	Mirror  MirrorConfig  `yaml:"mirror"`
}

type LogConfig struct {
	Mode  string `yaml:"mode" env:"PATHWAYDB_LOG_MODE" env-default:"dev"`
	Level string `yaml:"level" env:"PATHWAYDB_LOG_LEVEL" env-default:"info"`
}

type HTTPConfig struct {
	Timeout         time.Duration `yaml:"timeout" env:"PATHWAYDB_HTTP_TIMEOUT" env-default:"5m"`
	MinInterval     time.Duration `yaml:"min_interval" env:"PATHWAYDB_HTTP_MIN_INTERVAL" env-default:"334ms"`
	KEGGMinInterval time.Duration `yaml:"kegg_min_interval" env:"PATHWAYDB_KEGG_MIN_INTERVAL" env-default:"100ms"`
	UserAgent       string        `yaml:"user_agent" env:"PATHWAYDB_USER_AGENT" env-default:"pathwaydb/0.1"`
}

type IngestConfig struct {
	BatchSize     int `yaml:"batch_size" env:"PATHWAYDB_INGEST_BATCH_SIZE" env-default:"100000"`
	ProgressEvery int `yaml:"progress_every" env:"PATHWAYDB_INGEST_PROGRESS_EVERY" env-default:"100000"`
}

type EnrichConfig struct {
	BatchSize int           `yaml:"batch_size" env:"PATHWAYDB_ENRICH_BATCH_SIZE" env-default:"100"`
	Pause     time.Duration `yaml:"pause" env:"PATHWAYDB_ENRICH_PAUSE" env-default:"200ms"`

	// TermNamesFile is the bundled GO id to name JSON map. Empty disables that tier.
	TermNamesFile string `yaml:"term_names_file" env:"PATHWAYDB_TERM_NAMES_FILE" env-default:""`
}

type SourcesConfig struct {
	GAFURLTemplate string `yaml:"gaf_url_template" env:"PATHWAYDB_GAF_URL" env-default:"http://geneontology.org/gene-associations/goa_%s.gaf.gz"`
	KEGGBaseURL    string `yaml:"kegg_base_url" env:"PATHWAYDB_KEGG_URL" env-default:"https://rest.kegg.jp"`
	QuickGOURL     string `yaml:"quickgo_url" env:"PATHWAYDB_QUICKGO_URL" env-default:"https://www.ebi.ac.uk/QuickGO/services/ontology/go/terms"`
	MSigDBURL      string `yaml:"msigdb_url" env:"PATHWAYDB_MSIGDB_URL" env-default:"https://data.broadinstitute.org/gsea-msigdb/msigdb/release"`
	MSigDBVersion  string `yaml:"msigdb_version" env:"PATHWAYDB_MSIGDB_VERSION" env-default:"2024.1"`
}

// MirrorConfig points at an optional S3-compatible bucket of prebuilt cache files.
type MirrorConfig struct {
	Bucket       string `yaml:"bucket" env:"PATHWAYDB_MIRROR_BUCKET" env-default:""`
	Prefix       string `yaml:"prefix" env:"PATHWAYDB_MIRROR_PREFIX" env-default:"pathwaydb"`
	Region       string `yaml:"region" env:"PATHWAYDB_MIRROR_REGION" env-default:"us-east-1"`
	Endpoint     string `yaml:"endpoint" env:"PATHWAYDB_MIRROR_ENDPOINT" env-default:""`
	UsePathStyle bool   `yaml:"use_path_style" env:"PATHWAYDB_MIRROR_PATH_STYLE" env-default:"false"`
}

// Enabled reports whether a mirror bucket is configured.
func (m MirrorConfig) Enabled() bool { return m.Bucket != "" }

// Load reads path (if non-empty) and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, apperrors.New("config.load", apperrors.ErrConfiguration, err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	dir, err := expandHome(c.CacheDir)
	if err != nil {
		return apperrors.New("config.load", apperrors.ErrConfiguration, err)
	}
	c.CacheDir = dir
	if c.BundledDir, err = expandHome(c.BundledDir); err != nil {
		return apperrors.New("config.load", apperrors.ErrConfiguration, err)
	}
	if c.Ingest.BatchSize <= 0 {
		return apperrors.Newf("config.load", apperrors.ErrConfiguration, "ingest batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Enrich.BatchSize <= 0 {
		return apperrors.Newf("config.load", apperrors.ErrConfiguration, "enrich batch_size must be positive, got %d", c.Enrich.BatchSize)
	}
	if c.Enrich.Pause <= 0 {
		return apperrors.Newf("config.load", apperrors.ErrConfiguration, "enrich pause must be positive, got %s", c.Enrich.Pause)
	}
	if !strings.Contains(c.Sources.GAFURLTemplate, "%s") {
		return apperrors.Newf("config.load", apperrors.ErrConfiguration, "gaf_url_template %q lacks a %%s placeholder", c.Sources.GAFURLTemplate)
	}
	return nil
}

// GAFURL returns the GO annotation feed URL for a species name.
func (c *Config) GAFURL(species string) string {
	return fmt.Sprintf(c.Sources.GAFURLTemplate, species)
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
