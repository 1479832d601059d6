package cmd

import (
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "trial-matcher"
)

type Config struct {
	Patient     *PatientConfig    `mapstructure:"patient"`
	Output      *OutputConfig     `mapstructure:"output"`
	Search      *SearchConfig     `mapstructure:"search"`
	Criteria    *CriteriaConfig   `mapstructure:"criteria"`
	Redaction   *RedactionConfig  `mapstructure:"redaction"`
	Enrichment  *EnrichmentConfig `mapstructure:"enrichment"`
	AI          *AIConfig         `mapstructure:"ai"`
	MaxTrials   int               `mapstructure:"max-trials"`
	MaxCriteria int               `mapstructure:"max-criteria"`
	Concurrency int               `mapstructure:"concurrency"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	ExcludeFile string            `mapstructure:"exclude-file"`
}

type PatientConfig struct {
	// Source is the path of the patient narrative file, or "-" for stdin.
	Source string `mapstructure:"source"`
}

type OutputConfig struct {
	// Destination is the report file path; empty writes to stdout.
	Destination string `mapstructure:"destination"`
}

type SearchConfig struct {
	URL        string `mapstructure:"url"`
	Index      string `mapstructure:"index"`
	APIKeyFile string `mapstructure:"api-key-file"`
}

type CriteriaConfig struct {
	Redis    *RedisConfig    `mapstructure:"redis"`
	Postgres *PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	KeyPrefix string        `mapstructure:"key-prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type PostgresConfig struct {
	DSNFile string `mapstructure:"dsn-file"`
}

type RedactionConfig struct {
	AgeThreshold int `mapstructure:"age-threshold"`
}

type EnrichmentConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type AIConfig struct {
	Provider  string           `mapstructure:"provider"`
	Gemini    *GeminiConfig    `mapstructure:"gemini"`
	Anthropic *AnthropicConfig `mapstructure:"anthropic"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
	// ProfileCache shares the masked profile across classifier calls
	// through a cached content resource instead of resending it.
	ProfileCache bool `mapstructure:"profile-cache"`
}

type AnthropicConfig struct {
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "trial-matcher is a cli for matching a patient profile against a clinical trial index",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("ai.anthropic.api-key-file", "ANTHROPIC_API_KEY_FILE"); err != nil {
		log.Fatalf("binding ANTHROPIC_API_KEY_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("search.api-key-file", "TRIAL_INDEX_API_KEY_FILE"); err != nil {
		log.Fatalf("binding TRIAL_INDEX_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is trial-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	viper.SetDefault("max-trials", 20)
	viper.SetDefault("max-criteria", 5)
	viper.SetDefault("concurrency", 4)
	viper.SetDefault("redaction.age-threshold", 89)
	viper.SetDefault("enrichment.enabled", true)
	viper.SetDefault("search.index", "clinical_trials")
	viper.SetDefault("criteria.redis.key-prefix", "trial_criteria")
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.anthropic.max-retries", 3)
}

func initConfig() {
	// Config needed only for run command now. If there is no config, we can skip initialization
	if runCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
