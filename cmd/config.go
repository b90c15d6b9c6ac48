package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "fixit"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage fixit configuration.

Running bare 'fixit config' is the same as 'fixit config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# fixit configuration
# See: fixit config show (for effective values and sources)

# State/data directory (default: ~/.config/fixit)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/fixit/fixit.db)
# db_path: {{ .DBPath }}

# Identity used by CLI and MCP commands (override with --as)
identity:
  user_id: "{{ .UserID }}"

# Anthropic API (api_key falls back to ANTHROPIC_API_KEY)
anthropic:
  # api_key: ""
  model: "{{ .Model }}"
  max_tokens: {{ .MaxTokens }}

# Suggestion generation
suggestion:
  # Upper bound on a single model call
  timeout: {{ .SuggestionTimeout }}

# REST API authentication (fixit serve refuses to start without a secret)
auth:
  # jwt_secret: ""
  token_ttl: {{ .TokenTTL }}

# REST API port
port: {{ .Port }}

# OpenTelemetry
telemetry:
  enabled: {{ .TelemetryEnabled }}
  stdout: {{ .TelemetryStdout }}
  otlp_endpoint: "{{ .OTLPEndpoint }}"
`

type configTemplateData struct {
	StateDir          string
	DBPath            string
	UserID            string
	Model             string
	MaxTokens         int
	SuggestionTimeout time.Duration
	TokenTTL          time.Duration
	Port              int
	TelemetryEnabled  bool
	TelemetryStdout   bool
	OTLPEndpoint      string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:          viper.GetString("state_dir"),
		DBPath:            viper.GetString("db_path"),
		UserID:            viper.GetString("identity.user_id"),
		Model:             viper.GetString("anthropic.model"),
		MaxTokens:         viper.GetInt("anthropic.max_tokens"),
		SuggestionTimeout: viper.GetDuration("suggestion.timeout"),
		TokenTTL:          viper.GetDuration("auth.token_ttl"),
		Port:              viper.GetInt("port"),
		TelemetryEnabled:  viper.GetBool("telemetry.enabled"),
		TelemetryStdout:   viper.GetBool("telemetry.stdout"),
		OTLPEndpoint:      viper.GetString("telemetry.otlp_endpoint"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "FIXIT_STATE_DIR"},
	{Key: "db_path", EnvVar: "FIXIT_DB_PATH"},
	{Key: "identity.user_id", EnvVar: "FIXIT_IDENTITY_USER_ID"},
	{Key: "anthropic.api_key", EnvVar: "FIXIT_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.model", EnvVar: "FIXIT_ANTHROPIC_MODEL"},
	{Key: "anthropic.max_tokens", EnvVar: "FIXIT_ANTHROPIC_MAX_TOKENS"},
	{Key: "anthropic.base_url", EnvVar: "FIXIT_ANTHROPIC_BASE_URL"},
	{Key: "suggestion.timeout", EnvVar: "FIXIT_SUGGESTION_TIMEOUT"},
	{Key: "auth.jwt_secret", EnvVar: "FIXIT_AUTH_JWT_SECRET", Secret: true},
	{Key: "auth.token_ttl", EnvVar: "FIXIT_AUTH_TOKEN_TTL"},
	{Key: "port", EnvVar: "FIXIT_PORT"},
	{Key: "telemetry.enabled", EnvVar: "FIXIT_TELEMETRY_ENABLED"},
	{Key: "telemetry.stdout", EnvVar: "FIXIT_TELEMETRY_STDOUT"},
	{Key: "telemetry.otlp_endpoint", EnvVar: "FIXIT_TELEMETRY_OTLP_ENDPOINT"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret {
			val = maskSecret(viper.GetString(k.Key))
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-24s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// maskSecret hides all but the last four characters of a secret.
func maskSecret(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'fixit config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
