package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/fixit/internal/identity"
	"github.com/joescharf/fixit/internal/llm"
	"github.com/joescharf/fixit/internal/output"
	"github.com/joescharf/fixit/internal/store"
	"github.com/joescharf/fixit/internal/telemetry"
	"github.com/joescharf/fixit/internal/tracker"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "fixit",
	Short: "Issue tracker with AI resolution suggestions",
	Long: `fixit tracks issues through their lifecycle and asks an AI model
for resolution suggestions. It runs as a CLI, a REST API (fixit serve)
or an MCP stdio server (fixit mcp).`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return telemetry.Init(cmd.Context(), telemetry.Config{
			Enabled:      viper.GetBool("telemetry.enabled"),
			Stdout:       viper.GetBool("telemetry.stdout"),
			OTLPEndpoint: viper.GetString("telemetry.otlp_endpoint"),
			ServiceName:  "fixit",
			Version:      buildVersion,
		})
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)
	cobra.OnFinalize(closeDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/fixit/config.yaml)")
	rootCmd.PersistentFlags().String("as", "", "Act as this user ID (default identity.user_id)")
	_ = viper.BindPFlag("identity.user_id", rootCmd.PersistentFlags().Lookup("as"))
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "fixit")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("FIXIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers the default value of every config key.
func setDefaults() {
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "fixit")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "fixit.db"))
	viper.SetDefault("identity.user_id", "")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", llm.DefaultModel)
	viper.SetDefault("anthropic.max_tokens", llm.DefaultMaxTokens)
	viper.SetDefault("anthropic.base_url", "")
	viper.SetDefault("suggestion.timeout", tracker.DefaultSuggestionTimeout)
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("auth.token_ttl", 24*time.Hour)
	viper.SetDefault("port", 8080)
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.stdout", false)
	viper.SetDefault("telemetry.otlp_endpoint", "")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Initialize store lazily; only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// shutdownTelemetry is swapped out by tests.
var shutdownTelemetry = telemetry.Shutdown

// closeDeps flushes telemetry and closes the store. It runs after every
// command, including ones that return an error.
func closeDeps() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownTelemetry(ctx)
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx := rootCmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = telemetry.WrapStore(s)
	return dataStore, nil
}

// newTracker wires the issue manager and suggestion workflow over the shared store.
func newTracker() (*tracker.Manager, *tracker.Workflow, error) {
	s, err := getStore()
	if err != nil {
		return nil, nil, err
	}
	issues := tracker.NewManager(s)
	workflow := tracker.NewWorkflow(issues, s, newGenerator(), viper.GetDuration("suggestion.timeout"))
	return issues, workflow, nil
}

// actingIdentity loads the user named by --as / identity.user_id. It returns
// nil when no user is configured so that read-only commands still work.
func actingIdentity(ctx context.Context) (*identity.Identity, error) {
	userID := viper.GetString("identity.user_id")
	if userID == "" {
		return nil, nil
	}
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	u, err := s.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, tracker.Unauthenticated(fmt.Sprintf("unknown user %q (see 'fixit user list')", userID))
	}
	if err != nil {
		return nil, err
	}
	ui.VerboseLog("Acting as %s (%s)", u.Name, u.Role)
	return identity.FromUser(u), nil
}

// requireIdentity is actingIdentity for commands that change data.
func requireIdentity(ctx context.Context) (*identity.Identity, error) {
	id, err := actingIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, tracker.Unauthenticated("no acting user: pass --as <user-id> or set identity.user_id")
	}
	return id, nil
}
