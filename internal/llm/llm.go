package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/joescharf/fixit/internal/telemetry"
)

const (
	DefaultModel     = "claude-haiku-4-5-20251001"
	DefaultMaxTokens = 1024

	scopeName = "github.com/joescharf/fixit/llm"
)

// ErrNoContent is returned when the model answers without any text.
var ErrNoContent = errors.New("no text content in API response")

// Client wraps the Anthropic API for suggestion generation.
type Client struct {
	api       *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClient creates an LLM client with the given API key and model. Empty
// values fall back to the SDK's environment lookup and DefaultModel.
func NewClient(apiKey, model string, maxTokens int, opts ...option.RequestOption) *Client {
	if apiKey != "" {
		opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	}
	// The workflow owns the only retry policy, which is none.
	opts = append(opts, option.WithMaxRetries(0))
	client := anthropic.NewClient(opts...)

	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	aiMetricsOnce.Do(initAIMetrics)

	return &Client{
		api:       &client,
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
	}
}

// ModelName returns the model identifier sent with every request.
func (c *Client) ModelName() string {
	return string(c.model)
}

// buildSuggestionPrompt wraps an issue description in the resolution prompt.
func buildSuggestionPrompt(description string) string {
	var sb strings.Builder
	sb.WriteString("Based on this issue description, provide a helpful suggestion for resolution: \"")
	sb.WriteString(description)
	sb.WriteString("\". Provide a concise and practical suggestion.")
	return sb.String()
}

// GenerateSuggestion asks the model for resolution advice on description.
// Exactly one request is made.
func (c *Client) GenerateSuggestion(ctx context.Context, description string) (string, error) {
	ctx, span := telemetry.Tracer(scopeName).Start(ctx, "anthropic.messages.new")
	defer span.End()
	modelAttr := attribute.String("fixit.ai.model", string(c.model))
	span.SetAttributes(modelAttr, attribute.String("fixit.ai.operation", "suggest"))

	t0 := time.Now()
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildSuggestionPrompt(description))),
		},
	})
	ms := float64(time.Since(t0).Milliseconds())
	aiMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	aiMetrics.inputTokens.Add(ctx, msg.Usage.InputTokens, metric.WithAttributes(modelAttr))
	aiMetrics.outputTokens.Add(ctx, msg.Usage.OutputTokens, metric.WithAttributes(modelAttr))
	span.SetAttributes(
		attribute.Int64("fixit.ai.input_tokens", msg.Usage.InputTokens),
		attribute.Int64("fixit.ai.output_tokens", msg.Usage.OutputTokens),
	)

	text := extractText(msg.Content)
	if text == "" {
		span.SetStatus(codes.Error, ErrNoContent.Error())
		return "", ErrNoContent
	}
	return text, nil
}

// extractText joins the text blocks of a response.
func extractText(blocks []anthropic.ContentBlockUnion) string {
	var parts []string
	for _, block := range blocks {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			parts = append(parts, strings.TrimSpace(block.Text))
		}
	}
	return strings.Join(parts, "\n\n")
}

// aiMetrics holds lazily-initialized OTel instruments for Anthropic API calls.
// They are bound to whichever meter provider is global at first use.
var aiMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var aiMetricsOnce sync.Once

func initAIMetrics() {
	m := telemetry.Meter(scopeName)
	aiMetrics.inputTokens, _ = m.Int64Counter("fixit.ai.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.outputTokens, _ = m.Int64Counter("fixit.ai.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.duration, _ = m.Float64Histogram("fixit.ai.request.duration",
		metric.WithDescription("Anthropic API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}
