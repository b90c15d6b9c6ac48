package cmd

import (
	"os"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/viper"

	"github.com/joescharf/fixit/internal/llm"
	"github.com/joescharf/fixit/internal/tracker"
)

// newGenerator creates the suggestion generator from config/env, or returns
// nil if no API key is configured.
func newGenerator() tracker.Generator {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	var opts []option.RequestOption
	if baseURL := viper.GetString("anthropic.base_url"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model"), viper.GetInt("anthropic.max_tokens"), opts...)
}
