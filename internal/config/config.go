package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendPostgres = "postgres"
	BackendFile     = "file"
)

// Config holds the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Study    StudyConfig    `yaml:"study"`
	Store    StoreConfig    `yaml:"store"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// StudyConfig describes the evaluation study being run.
type StudyConfig struct {
	Title        string `yaml:"title"`
	QuestionsCSV string `yaml:"questions_csv"`
}

// StoreConfig selects and parameterizes the result store backend.
type StoreConfig struct {
	// Backend is either "postgres" (one shared table for all
	// participants) or "file" (one local CSV per participant).
	Backend string `yaml:"backend"`

	// Table is the results table name for the postgres backend.
	Table string `yaml:"table"`

	// ResultsDir is the results directory for the file backend.
	ResultsDir string `yaml:"results_dir"`
}

// PostgresConfig holds the PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Load reads the configuration file, fills unset fields from environment
// variables and defaults, and validates the result. A missing file is not
// an error: everything can come from the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.Server.Address, "EVALFORM_ADDRESS")
	setFromEnv(&c.Study.Title, "EVALFORM_STUDY_TITLE")
	setFromEnv(&c.Study.QuestionsCSV, "EVALFORM_QUESTIONS_CSV")
	setFromEnv(&c.Store.Backend, "EVALFORM_STORE_BACKEND")
	setFromEnv(&c.Store.Table, "EVALFORM_RESULTS_TABLE")
	setFromEnv(&c.Store.ResultsDir, "EVALFORM_RESULTS_DIR")
	setFromEnv(&c.Postgres.Host, "POSTGRES_HOST")
	setFromEnv(&c.Postgres.Port, "POSTGRES_PORT")
	setFromEnv(&c.Postgres.User, "POSTGRES_USER")
	setFromEnv(&c.Postgres.Password, "POSTGRES_PASSWORD")
	setFromEnv(&c.Postgres.DBName, "POSTGRES_DB")
	setFromEnv(&c.Redis.Host, "REDIS_HOST")
	setFromEnv(&c.Redis.Port, "REDIS_PORT")
	setFromEnv(&c.Redis.Password, "REDIS_PASSWORD")
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.Address, ":8080")
	setDefault(&c.Study.Title, "LLM Answer Evaluation")
	setDefault(&c.Study.QuestionsCSV, "questions.csv")
	setDefault(&c.Store.Backend, BackendPostgres)
	setDefault(&c.Store.Table, "results_v2")
	setDefault(&c.Store.ResultsDir, "results")
	setDefault(&c.Postgres.Host, "localhost")
	setDefault(&c.Postgres.Port, "5432")
	setDefault(&c.Postgres.User, "postgres")
	setDefault(&c.Postgres.Password, "postgres")
	setDefault(&c.Postgres.DBName, "evalform")
	setDefault(&c.Redis.Host, "localhost")
	setDefault(&c.Redis.Port, "6379")
}

func validate(c *Config) error {
	if c.Store.Backend != BackendPostgres && c.Store.Backend != BackendFile {
		return fmt.Errorf("store.backend must be %q or %q, got %q",
			BackendPostgres, BackendFile, c.Store.Backend)
	}
	if c.Study.QuestionsCSV == "" {
		return fmt.Errorf("study.questions_csv must be set")
	}
	if c.Store.Backend == BackendFile && c.Store.ResultsDir == "" {
		return fmt.Errorf("store.results_dir must be set for the file backend")
	}
	return nil
}

// setFromEnv overrides dst when the environment variable is set.
func setFromEnv(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setDefault(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}
