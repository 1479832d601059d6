package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/medmatch/trial-matcher/internal/ai"
	aianthropic "github.com/medmatch/trial-matcher/internal/ai/anthropic"
	"github.com/medmatch/trial-matcher/internal/ai/gemini"
	"github.com/medmatch/trial-matcher/internal/criteria"
	"github.com/medmatch/trial-matcher/internal/enrich"
	"github.com/medmatch/trial-matcher/internal/filtering"
	"github.com/medmatch/trial-matcher/internal/logger"
	"github.com/medmatch/trial-matcher/internal/match"
	"github.com/medmatch/trial-matcher/internal/pipeline"
	"github.com/medmatch/trial-matcher/internal/profile"
	"github.com/medmatch/trial-matcher/internal/redact"
	"github.com/medmatch/trial-matcher/internal/report"
	"github.com/medmatch/trial-matcher/internal/secrets"
	"github.com/medmatch/trial-matcher/internal/trialindex"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptShowSummary  = "Show summary"
	PromptShowTrials   = "Show ranked trials"
	PromptReportToFile = "Dump report to file"
	PromptExit         = "Exit"
)

var errExit = errors.New("exit requested")

// contentGenerator is the shared text backend for extraction and
// enrichment, provider-agnostic.
type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

var prompt = promptui.Select{
	Label: "Matching finished",
	Items: []string{PromptShowSummary, PromptShowTrials, PromptReportToFile, PromptExit},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trial-matcher main command",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-approve", "y", false, "write the report and exit without the interactive menu")
	runCmd.Flags().StringP("patient-file", "p", "", "patient narrative file, '-' reads stdin")
	runCmd.Flags().StringP("exclude-file", "e", "", "special file with trials to exclude. Default is unset.")

	viper.BindPFlag("patient.source", runCmd.Flags().Lookup("patient-file"))
	viper.BindPFlag("exclude-file", runCmd.Flags().Lookup("exclude-file"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the trial-matcher", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config == nil {
		logger.Fatal("config is required")
	}
	if config.Search == nil || strings.TrimSpace(config.Search.URL) == "" {
		logger.Fatal("trial index url is required under search.url")
	}

	narrative, err := readNarrative(config)
	if err != nil {
		logger.Fatal("reading the patient narrative", zap.Error(err))
	}

	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	p, err := buildPipeline(ctx, config, narrative, logger)
	if err != nil {
		logger.Fatal("building the matching pipeline", zap.Error(err))
	}

	result := p.Run(ctx, narrative)

	switch result.Outcome {
	case pipeline.OutcomeSuccess, pipeline.OutcomePartialFailure:
	case pipeline.OutcomeCancelled:
		logger.Fatal("run cancelled", zap.Error(result.Err))
	case pipeline.OutcomeExtractionError:
		logger.Fatal("no usable patient profile", zap.Error(result.Err))
	default:
		logger.Fatal("matching failed", zap.Error(result.Err))
	}

	if result.Query != nil && result.Query.Degraded {
		logger.Warn("keyword enrichment was degraded, results are based on extracted keywords only")
	}
	if result.Outcome == pipeline.OutcomePartialFailure {
		logger.Warn("some criterion evaluations failed, affected criteria are reported as unknown")
	}

	logger.Info("matching finished",
		zap.String("outcome", string(result.Outcome)),
		zap.Int("trials", result.Report.Summary.TotalTrials),
		zap.Int("trials_with_matches", result.Report.Summary.TrialsWithMatches),
		zap.Float64("best_score", result.Report.Summary.BestScore),
	)

	if err := deliverReport(cmd, config, result.Report, logger); err != nil {
		if errors.Is(err, errExit) {
			return
		}
		logger.Fatal("exiting", zap.Error(err))
	}
}

// deliverReport writes the report out, interactively unless auto-approve
// is set or a destination is configured.
func deliverReport(cmd *cobra.Command, config *Config, rep *report.Report, logger *zap.Logger) error {
	destination := ""
	if config.Output != nil {
		destination = strings.TrimSpace(config.Output.Destination)
	}
	if destination == "-" {
		return rep.Write(os.Stdout)
	}

	if destination != "" {
		if err := rep.WriteFile(destination); err != nil {
			return err
		}
		logger.Info("report written", zap.String("filename", destination))
		return nil
	}

	if cmd.Flag("auto-approve").Value.String() == "true" {
		return rep.Write(os.Stdout)
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			return err
		}

		if err := handleAction(action, rep, logger); err != nil {
			return err
		}
	}
}

func handleAction(action string, rep *report.Report, logger *zap.Logger) error {
	switch action {
	case PromptShowSummary:
		pretty, _ := json.MarshalIndent(rep.Summary, "", "  ")
		logger.Info(string(pretty))
		return nil
	case PromptShowTrials:
		for _, trial := range rep.Trials {
			logger.Info("ranked trial",
				zap.Int("rank", trial.Rank),
				zap.String("nct_id", trial.NCTID),
				zap.String("title", trial.Title),
				zap.Float64("score", trial.Score),
				zap.Int("eligible", trial.Eligible),
				zap.Int("evaluated", trial.Evaluated),
			)
		}
		return nil
	case PromptReportToFile:
		filename := fmt.Sprintf("trial-matcher-report-%d.json", time.Now().Unix())
		if err := rep.WriteFile(filename); err != nil {
			return fmt.Errorf("dump report to file: %w", err)
		}
		logger.Info("dumping report to file", zap.String("filename", filename))
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// readNarrative loads the patient narrative from the configured source.
func readNarrative(config *Config) (string, error) {
	source := ""
	if config.Patient != nil {
		source = strings.TrimSpace(config.Patient.Source)
	}
	if source == "" {
		return "", errors.New("patient narrative source is not configured (set patient.source or --patient-file)")
	}

	if source == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading narrative from stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return "", fmt.Errorf("reading narrative file: %w", err)
	}
	return string(data), nil
}

func buildPipeline(ctx context.Context, config *Config, narrative string, logger *zap.Logger) (*pipeline.Pipeline, error) {
	ageThreshold := redact.DefaultAgeThreshold
	if config.Redaction != nil && config.Redaction.AgeThreshold > 0 {
		ageThreshold = config.Redaction.AgeThreshold
	}
	redactor := redact.New(ageThreshold)

	classifier, generator, err := newAIBackend(ctx, config.AI, logger)
	if err != nil {
		return nil, fmt.Errorf("building ai backend: %w", err)
	}

	if cacheable, ok := classifier.(*gemini.Classifier); ok && config.AI.Gemini != nil && config.AI.Gemini.ProfileCache {
		wireProfileCache(ctx, cacheable, generator, redactor.Mask(narrative), logger)
	}

	maxRetries := profile.DefaultMaxRetries
	maxLogLength := 0
	switch {
	case strings.EqualFold(config.AI.Provider, "anthropic") && config.AI.Anthropic != nil:
		maxRetries = config.AI.Anthropic.MaxRetries
	case config.AI.Gemini != nil:
		maxRetries = config.AI.Gemini.MaxRetries
		maxLogLength = config.AI.Gemini.MaxLogLength
	}
	summarizer := profile.NewSummarizer(generator, maxRetries, maxLogLength, logger)

	var queryBuilder pipeline.QueryBuilder = enrich.NewEnricher(generator, maxLogLength, logger)
	if config.Enrichment != nil && !config.Enrichment.Enabled {
		queryBuilder = pipeline.NewPlainQueryBuilder()
	}

	retriever := trialindex.New(logger, config.Search.URL)
	if config.Search.Index != "" {
		retriever.Index = config.Search.Index
	}
	searchKey, found, err := secrets.LoadOptional(secrets.Source{
		Name: "trial index api key",
		File: config.Search.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("loading trial index api key: %w", err)
	}
	if found {
		retriever.APIKey = searchKey
	}

	source, err := newCriteriaSource(config.Criteria, logger)
	if err != nil {
		return nil, err
	}

	evaluator := match.NewEvaluator(classifier, config.MaxCriteria, config.Concurrency, 0, logger)

	filters := []filtering.Filter{filtering.NewDedupe()}
	if excludeFile := strings.TrimSpace(config.ExcludeFile); excludeFile != "" {
		filters = append(filters, filtering.NewExcludeFile(excludeFile))
	}

	return pipeline.New(redactor, summarizer, queryBuilder, retriever, source, evaluator, filters, config.MaxTrials, logger), nil
}

// newAIBackend builds the provider's classifier plus the shared text
// generator used by extraction and enrichment.
func newAIBackend(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Classifier, contentGenerator, error) {
	if cfg == nil {
		return nil, nil, errors.New("ai configuration is required")
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	switch provider {
	case "", "gemini":
		if cfg.Gemini == nil {
			return nil, nil, errors.New("gemini configuration is required when ai provider is gemini")
		}

		apiKey, err := secrets.Load(secrets.Source{
			Name: "gemini api key",
			File: cfg.Gemini.APIKeyFile,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
		}

		generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model)
		if err != nil {
			return nil, nil, err
		}

		classifier := gemini.NewClassifier(generator, cfg.Gemini.MaxRetries, cfg.Gemini.MaxLogLength, logger)
		return classifier, generator, nil

	case "anthropic":
		if cfg.Anthropic == nil {
			return nil, nil, errors.New("anthropic configuration is required when ai provider is anthropic")
		}

		apiKey, err := secrets.Load(secrets.Source{
			Name: "anthropic api key",
			File: cfg.Anthropic.APIKeyFile,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%w (set ai.anthropic.api-key-file or ANTHROPIC_API_KEY_FILE)", err)
		}

		classifier, err := aianthropic.NewClassifier(apiKey, cfg.Anthropic.Model, cfg.Anthropic.MaxRetries, logger)
		if err != nil {
			return nil, nil, err
		}

		generator, err := aianthropic.NewGenerator(apiKey, cfg.Anthropic.Model)
		if err != nil {
			return nil, nil, err
		}

		return classifier, generator, nil

	default:
		return nil, nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

// wireProfileCache is best effort: when the cached content resource cannot
// be created the classifier simply keeps inlining the profile.
func wireProfileCache(ctx context.Context, classifier *gemini.Classifier, generator contentGenerator, maskedProfile string, logger *zap.Logger) {
	cacher, ok := generator.(*gemini.Generator)
	if !ok {
		return
	}

	runID := fmt.Sprintf("run-%d", time.Now().Unix())
	cacheName, err := cacher.EnsureProfileCache(ctx, runID, maskedProfile)
	if err != nil {
		logger.Warn("profile cache unavailable, inlining the profile per call", zap.Error(err))
		return
	}

	classifier.UseProfileCache(cacheName)
	logger.Debug("profile cache wired", zap.String("cache_name", cacheName))
}

func newCriteriaSource(cfg *CriteriaConfig, logger *zap.Logger) (*criteria.Source, error) {
	var cache *criteria.Cache
	var registry *criteria.Registry

	if cfg != nil && cfg.Redis != nil && strings.TrimSpace(cfg.Redis.Addr) != "" {
		cache = criteria.NewCache(cfg.Redis.Addr, cfg.Redis.KeyPrefix, cfg.Redis.TTL, logger)
	}

	if cfg != nil && cfg.Postgres != nil && strings.TrimSpace(cfg.Postgres.DSNFile) != "" {
		dsn, err := secrets.Load(secrets.Source{
			Name: "registry dsn",
			File: cfg.Postgres.DSNFile,
		})
		if err != nil {
			return nil, fmt.Errorf("loading registry dsn: %w", err)
		}

		registry, err = criteria.NewRegistry(dsn, logger)
		if err != nil {
			return nil, err
		}
	}

	return criteria.NewSource(cache, registry, logger), nil
}
