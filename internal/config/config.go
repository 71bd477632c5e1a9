// Package config implements the orchestrator's Configuration struct (§9):
// a typed, validated settings object loaded from a YAML file and environment
// variables via Viper (github.com/spf13/viper), with CLI overrides
// registered through pflag (github.com/spf13/pflag) the same way the
// teacher's internal/cli/input.go registers stdlib flag.FlagSet vars before
// validating and canonicalizing them. Determinism goal carried over from
// that module: paths are resolved relative to an explicit WorkDir, never the
// process CWD, and nothing here reads ambient state beyond the flags/file/
// env sources Viper was told to read.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Mode selects whether jobs run against simulated stub handlers or a live
// model provider (§9 Configuration.mode).
type Mode string

const (
	ModeLive      Mode = "live"
	ModeSimulated Mode = "simulated"
)

// FailureMode controls whether a layer's failures halt subsequent layers
// (§9 Configuration.failureMode). Mirrors executor.FailureMode; kept as a
// distinct type here so config has no compile-time dependency on executor.
type FailureMode string

const (
	FailFast   FailureMode = "fail-fast"
	BestEffort FailureMode = "best-effort"
)

// StorageConfig groups the Artifact Store's on-disk layout roots (§6.1).
type StorageConfig struct {
	Root     string `mapstructure:"root"`
	BasePath string `mapstructure:"basePath"`
}

// RunOptions are the per-run overrides spec.md §9 lists separately from the
// process-lifetime Configuration: they change what one invocation plans and
// executes, not how the process is wired.
type RunOptions struct {
	UpToLayer        *int   `mapstructure:"upToLayer"`
	ReRunFrom        *int   `mapstructure:"reRunFrom"`
	TargetArtifactID string `mapstructure:"targetArtifactId"`
	DryRun           bool   `mapstructure:"dryRun"`
	CostsOnly        bool   `mapstructure:"costsOnly"`
	NonInteractive   bool   `mapstructure:"nonInteractive"`
}

// Configuration is the typed settings object spec.md §9 requires: every
// field is either explicit on the command line, supplied via a
// WEAVECORE_-prefixed environment variable, or present in a YAML config
// file, merged in that precedence order by Viper.
type Configuration struct {
	Concurrency int         `mapstructure:"concurrency"`
	Mode        Mode        `mapstructure:"mode"`
	FailureMode FailureMode `mapstructure:"failureMode"`

	WorkDir     string `mapstructure:"workDir"`
	CLIRoot     string `mapstructure:"cliRoot"`
	CatalogRoot string `mapstructure:"catalogRoot"`

	Storage StorageConfig `mapstructure:"storage"`

	MovieID       string `mapstructure:"movieId"`
	BlueprintPath string `mapstructure:"blueprint"`
	InputsPath    string `mapstructure:"inputs"`
	DimsPath      string `mapstructure:"dims"`

	AnthropicAPIKey string  `mapstructure:"anthropicApiKey"`
	AnthropicModel  string  `mapstructure:"anthropicModel"`
	AnthropicRPS    float64 `mapstructure:"anthropicRps"`
	OpenAIAPIKey    string  `mapstructure:"openaiApiKey"`
	OpenAIModel     string  `mapstructure:"openaiModel"`
	OpenAIRPS       float64 `mapstructure:"openaiRps"`

	RedisAddr      string `mapstructure:"redisAddr"`
	RedisTTLSeconds int   `mapstructure:"redisTtlSeconds"`

	MongoURI        string `mapstructure:"mongoUri"`
	MongoDatabase   string `mapstructure:"mongoDatabase"`
	MongoCollection string `mapstructure:"mongoCollection"`

	Run RunOptions `mapstructure:"run"`
}

// InvalidError wraps a validation failure so internal/cli can map it to a
// stable exit code without string matching.
type InvalidError struct {
	Message string
}

func (e *InvalidError) Error() string { return e.Message }

func invalid(format string, args ...any) error {
	return &InvalidError{Message: fmt.Sprintf(format, args...)}
}

// Load registers pflag overrides on top of a YAML file (if present) and
// WEAVECORE_-prefixed environment variables, parses args, and returns a
// validated Configuration. args excludes argv[0], matching ParseInvocation's
// convention in the teacher's CLI package.
func Load(args []string) (*Configuration, error) {
	fs := pflag.NewFlagSet("weavecore", pflag.ContinueOnError)

	var configFile string
	fs.StringVar(&configFile, "config", "", "Path to a YAML configuration file (optional).")
	fs.Int("concurrency", 1, "Worker pool size; must be >= 1.")
	fs.String("mode", string(ModeSimulated), "Execution mode: live|simulated.")
	fs.String("failure-mode", string(FailFast), "Layer failure policy: fail-fast|best-effort.")
	fs.String("workdir", "", "Absolute working directory. Required.")
	fs.String("cli-root", "", "Root directory the CLI resolves relative paths under.")
	fs.String("catalog-root", "", "Root directory containing producer catalog definitions.")
	fs.String("storage-root", "", "Artifact store root directory. Required.")
	fs.String("storage-base-path", "movies", "Artifact store base path segment under storage-root.")
	fs.String("movie-id", "", "Movie identifier whose store directory this run operates on. Required.")
	fs.String("blueprint", "", "BlueprintTree JSON file path. Required.")
	fs.String("inputs", "", "Inputs document JSON file path. Required.")
	fs.String("dims", "", "Optional cardinalities JSON file (loop/leaf dimension counts).")
	fs.String("anthropic-api-key", "", "Anthropic API key (live mode only).")
	fs.String("anthropic-model", "claude-3-5-sonnet-latest", "Default Anthropic model.")
	fs.Float64("anthropic-rps", 2, "Anthropic request rate ceiling, in requests per second (<= 0 disables throttling).")
	fs.String("openai-api-key", "", "OpenAI API key (live mode only).")
	fs.String("openai-model", "gpt-4o-mini", "Default OpenAI model.")
	fs.Float64("openai-rps", 2, "OpenAI request rate ceiling, in requests per second (<= 0 disables throttling).")
	fs.Int("up-to-layer", -1, "Drop jobs at layer > N (-1 means no limit).")
	fs.Int("re-run-from", -1, "Force jobs at layer >= N dirty (-1 means unset).")
	fs.String("target-artifact-id", "", "Restrict the dirty set to this artifact's downstream subgraph.")
	fs.Bool("dry-run", false, "Build and persist the plan without executing it.")
	fs.Bool("costs-only", false, "Report estimated provider cost without executing.")
	fs.Bool("non-interactive", false, "Fail instead of prompting when a decision is ambiguous.")
	fs.String("redis-addr", "", "Optional Redis address for a blob read-through cache.")
	fs.Int("redis-ttl-seconds", 0, "Redis blob cache entry TTL in seconds (0 means no expiry).")
	fs.String("mongo-uri", "", "Optional MongoDB connection URI for an alternate manifest backend.")
	fs.String("mongo-database", "weavecore", "MongoDB database name for the manifest backend.")
	fs.String("mongo-collection", "manifests", "MongoDB collection name for the manifest backend.")

	if err := fs.Parse(args); err != nil {
		return nil, invalid("%v", err)
	}
	if len(fs.Args()) != 0 {
		return nil, invalid("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}

	v := viper.New()
	v.SetEnvPrefix("WEAVECORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: binding flags: %w", err)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, invalid("reading --config %q: %v", configFile, err)
		}
	}

	cfg := &Configuration{
		Concurrency: v.GetInt("concurrency"),
		Mode:        Mode(v.GetString("mode")),
		FailureMode: FailureMode(v.GetString("failure-mode")),
		WorkDir:     filepath.Clean(v.GetString("workdir")),
		CLIRoot:     v.GetString("cli-root"),
		CatalogRoot: v.GetString("catalog-root"),
		Storage: StorageConfig{
			Root:     v.GetString("storage-root"),
			BasePath: v.GetString("storage-base-path"),
		},
		MovieID:         v.GetString("movie-id"),
		BlueprintPath:   v.GetString("blueprint"),
		InputsPath:      v.GetString("inputs"),
		DimsPath:        v.GetString("dims"),
		AnthropicAPIKey: v.GetString("anthropic-api-key"),
		AnthropicModel:  v.GetString("anthropic-model"),
		AnthropicRPS:    v.GetFloat64("anthropic-rps"),
		OpenAIAPIKey:    v.GetString("openai-api-key"),
		OpenAIModel:     v.GetString("openai-model"),
		OpenAIRPS:       v.GetFloat64("openai-rps"),
		RedisAddr:       v.GetString("redis-addr"),
		RedisTTLSeconds: v.GetInt("redis-ttl-seconds"),
		MongoURI:        v.GetString("mongo-uri"),
		MongoDatabase:   v.GetString("mongo-database"),
		MongoCollection: v.GetString("mongo-collection"),
		Run: RunOptions{
			TargetArtifactID: v.GetString("target-artifact-id"),
			DryRun:           v.GetBool("dry-run"),
			CostsOnly:        v.GetBool("costs-only"),
			NonInteractive:   v.GetBool("non-interactive"),
		},
	}
	if n := v.GetInt("up-to-layer"); n >= 0 {
		cfg.Run.UpToLayer = &n
	}
	if n := v.GetInt("re-run-from"); n >= 0 {
		cfg.Run.ReRunFrom = &n
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Configuration) resolvePaths() error {
	if c.WorkDir == "" {
		return invalid("--workdir is required")
	}
	if !filepath.IsAbs(c.WorkDir) {
		return invalid("--workdir must be an absolute path (got %q)", c.WorkDir)
	}
	var err error
	if c.Storage.Root, err = resolveUnderWorkDir(c.WorkDir, c.Storage.Root); err != nil {
		return fmt.Errorf("--storage-root: %w", err)
	}
	if c.BlueprintPath, err = resolveUnderWorkDir(c.WorkDir, c.BlueprintPath); err != nil {
		return fmt.Errorf("--blueprint: %w", err)
	}
	if c.InputsPath, err = resolveUnderWorkDir(c.WorkDir, c.InputsPath); err != nil {
		return fmt.Errorf("--inputs: %w", err)
	}
	if c.DimsPath != "" {
		if c.DimsPath, err = resolveUnderWorkDir(c.WorkDir, c.DimsPath); err != nil {
			return fmt.Errorf("--dims: %w", err)
		}
	}
	if c.CLIRoot != "" {
		if c.CLIRoot, err = resolveUnderWorkDir(c.WorkDir, c.CLIRoot); err != nil {
			return fmt.Errorf("--cli-root: %w", err)
		}
	}
	if c.CatalogRoot != "" {
		if c.CatalogRoot, err = resolveUnderWorkDir(c.WorkDir, c.CatalogRoot); err != nil {
			return fmt.Errorf("--catalog-root: %w", err)
		}
	}
	return nil
}

func resolveUnderWorkDir(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalid("path must not be empty")
	}
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	return filepath.Clean(filepath.Join(workDir, clean)), nil
}

func (c *Configuration) validate() error {
	if c.Concurrency < 1 {
		return invalid("concurrency must be >= 1 (got %d)", c.Concurrency)
	}
	switch c.Mode {
	case ModeLive, ModeSimulated:
	default:
		return invalid("invalid mode %q (expected live|simulated)", c.Mode)
	}
	switch c.FailureMode {
	case FailFast, BestEffort:
	default:
		return invalid("invalid failure-mode %q (expected fail-fast|best-effort)", c.FailureMode)
	}
	if c.MovieID == "" {
		return invalid("--movie-id is required")
	}
	if c.Mode == ModeLive && c.AnthropicAPIKey == "" && c.OpenAIAPIKey == "" {
		return invalid("mode=live requires --anthropic-api-key or --openai-api-key")
	}
	if c.Run.UpToLayer != nil && c.Run.ReRunFrom != nil && *c.Run.ReRunFrom > *c.Run.UpToLayer {
		return invalid("--re-run-from (%d) cannot exceed --up-to-layer (%d)", *c.Run.ReRunFrom, *c.Run.UpToLayer)
	}
	return nil
}
