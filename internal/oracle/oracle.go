// Package oracle wraps the optional LLM used for spec normalisation, story
// patches, build planning and narration. Every call is best-effort: callers
// must carry a complete deterministic fallback, and failures never propagate
// past the component boundary.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"idealcity/internal/tuning"
)

// ErrDisabled is returned when no API key is configured or AI is switched
// off; callers treat it like any other external failure.
var ErrDisabled = errors.New("oracle disabled")

type Oracle struct {
	client  anthropic.Client
	model   anthropic.Model
	timeout time.Duration
	enabled bool
	log     *log.Logger
}

// New builds the oracle from tuning. Missing ANTHROPIC_API_KEY or
// IDEAL_CITY_AI_DISABLE yields a permanently disabled instance.
func New(t tuning.Tuning, logger *log.Logger) *Oracle {
	o := &Oracle{
		model:   anthropic.Model(t.AI.Model),
		timeout: t.AIConnectTimeout() + t.AIReadTimeout(),
		log:     logger,
	}
	key := os.Getenv("ANTHROPIC_API_KEY")
	if t.AI.Disable || key == "" {
		return o
	}
	o.client = anthropic.NewClient(
		option.WithAPIKey(key),
		option.WithHTTPClient(&http.Client{
			Timeout: o.timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: t.AIConnectTimeout()}).DialContext,
			},
		}),
	)
	o.enabled = true
	return o
}

func (o *Oracle) Enabled() bool { return o != nil && o.enabled }

// Complete sends one system+user exchange and returns the raw text reply.
// No retries: the pipeline's retry unit is the whole submission.
func (o *Oracle) Complete(ctx context.Context, system, prompt string) (string, error) {
	if !o.Enabled() {
		return "", ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     o.model,
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := o.client.Messages.New(ctx, params)
	if err != nil {
		if o.log != nil {
			o.log.Printf("oracle call failed: %v", err)
		}
		return "", fmt.Errorf("oracle: %w", err)
	}
	if len(message.Content) == 0 {
		return "", fmt.Errorf("oracle: empty response")
	}
	block := message.Content[0]
	if block.Type != "text" {
		return "", fmt.Errorf("oracle: unexpected block type %q", block.Type)
	}
	return block.Text, nil
}
