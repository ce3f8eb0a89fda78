package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// Config holds configuration for the LLM-backed generator.
type Config struct {
	// BaseURL is the OpenAI-compatible endpoint to call.
	BaseURL string `koanf:"base_url"`

	// Model is the model name sent with every completion request.
	Model string `koanf:"model"`

	// APIKey authenticates against the endpoint.
	APIKey string `koanf:"api_key"`

	// Temperature for completions. Regeneration wants determinism, so the
	// default is low.
	Temperature float64 `koanf:"temperature"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("generator base_url is required")
	}
	if c.Model == "" {
		return fmt.Errorf("generator model is required")
	}
	return nil
}

// LLMGenerator implements Generator over an OpenAI-compatible chat
// completion endpoint via langchaingo.
//
// There is deliberately no timeout or retry here: an in-flight completion is
// awaited to the end because partially applied generation output cannot be
// discarded safely mid-write.
type LLMGenerator struct {
	llm         llms.Model
	temperature float64
	logger      *zap.Logger
}

// NewLLMGenerator builds a generator from config.
func NewLLMGenerator(cfg Config, logger *zap.Logger) (*LLMGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generator config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []openai.Option{
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	return &LLMGenerator{
		llm:         llm,
		temperature: cfg.Temperature,
		logger:      logger.Named("generator"),
	}, nil
}

// Generate prompts the model with the specification and the target's current
// files and parses a path-to-content JSON object out of the completion.
func (g *LLMGenerator) Generate(ctx context.Context, targetID string, specFiles, currentFiles map[string]string) (map[string]string, error) {
	prompt := buildPrompt(targetID, specFiles, currentFiles)

	g.logger.Debug("requesting generation",
		zap.String("target", targetID),
		zap.Int("spec_files", len(specFiles)),
		zap.Int("current_files", len(currentFiles)))

	completion, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
		llms.WithTemperature(g.temperature))
	if err != nil {
		return nil, fmt.Errorf("completion for target %s: %w", targetID, err)
	}

	files, err := ParseFileSet(completion)
	if err != nil {
		return nil, fmt.Errorf("parsing completion for target %s: %w", targetID, err)
	}

	g.logger.Info("generation completed",
		zap.String("target", targetID),
		zap.Int("files", len(files)))
	return files, nil
}

// buildPrompt renders the specification and current files into a single
// prompt asking for a complete replacement file set.
func buildPrompt(targetID string, specFiles, currentFiles map[string]string) string {
	var sb strings.Builder

	sb.WriteString("You are regenerating an SDK from an English specification.\n")
	fmt.Fprintf(&sb, "Target language: %s\n\n", targetID)

	sb.WriteString("## Specification\n\n")
	writeFileSection(&sb, specFiles)

	sb.WriteString("## Current files for this target\n\n")
	if len(currentFiles) == 0 {
		sb.WriteString("(none)\n\n")
	} else {
		writeFileSection(&sb, currentFiles)
	}

	sb.WriteString("Produce the complete replacement file set for this target.\n")
	sb.WriteString("Respond with a single JSON object mapping relative file path to full file content, and nothing else.\n")

	return sb.String()
}

// writeFileSection renders files deterministically (sorted by path) so the
// same inputs always produce the same prompt.
func writeFileSection(sb *strings.Builder, files map[string]string) {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		fmt.Fprintf(sb, "### %s\n\n```\n%s\n```\n\n", p, files[p])
	}
}
