// Package agent implements the model-backed capabilities of the order bot:
// the order classifier, the item extractor and the free-form assistant.
// Every call is bounded by a timeout and its output is treated as untrusted text.
package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"orderbot_backend/internal/orders"
	"orderbot_backend/platform/apperr"
	"orderbot_backend/platform/logger"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const defaultTimeout = 45 * time.Second

// Options configures the capabilities.
type Options struct {
	Timeout     time.Duration
	CompanyName string
	// PromptsFile overrides the embedded prompt catalogue.
	PromptsFile string
}

type caller struct {
	llm     model.LLM
	timeout time.Duration
	company string
	log     *logger.Logger
}

// Capabilities bundles the three model-backed capabilities over one model.
type Capabilities struct {
	Classifier *Classifier
	Extractor  *Extractor
	Assistant  *Assistant
}

// New builds the capabilities for llm.
func New(llm model.LLM, opts Options, log *logger.Logger) (*Capabilities, error) {
	prompts, err := LoadPrompts(opts.PromptsFile)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &caller{llm: llm, timeout: timeout, company: opts.CompanyName, log: log}
	return &Capabilities{
		Classifier: &Classifier{c: c, prompt: prompts.Classifier},
		Extractor:  &Extractor{c: c, prompt: prompts.Extractor},
		Assistant:  &Assistant{c: c, prompt: prompts.Assistant},
	}, nil
}

// generate runs one completion under the capability timeout and returns the text.
func (c *caller) generate(ctx context.Context, capability string, p Prompt, v vars) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	v.Company = c.company
	system, user := p.render(v)
	temperature := float32(0)
	req := &model.LLMRequest{
		Model:    c.llm.Name(),
		Contents: []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
			Temperature:       &temperature,
			ResponseMIMEType:  "application/json",
		},
	}

	var b strings.Builder
	for resp, err := range c.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return "", c.failure(ctx, capability, err)
		}
		if resp == nil || resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			if part != nil {
				b.WriteString(part.Text)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return "", c.failure(ctx, capability, err)
	}

	raw := strings.TrimSpace(b.String())
	c.log.WithContext(ctx).Debug("capability output", "capability", capability, "raw", raw)
	return raw, nil
}

func (c *caller) failure(ctx context.Context, capability string, err error) error {
	c.log.WithContext(ctx).CapabilityFailure(capability, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Timeout(capability+" timed out", err).WithOp(capability)
	}
	return apperr.Unavailable(capability+" failed", err).WithOp(capability)
}

// Classifier decides whether a message is order-related.
type Classifier struct {
	c      *caller
	prompt Prompt
}

// IsOrder returns false for anything but an explicit {"order": true}.
// A failed call returns an error, never a default verdict.
func (cl *Classifier) IsOrder(ctx context.Context, history, message string) (bool, error) {
	raw, err := cl.c.generate(ctx, "classify", cl.prompt, vars{History: history, Message: message})
	if err != nil {
		return false, err
	}
	return orders.ParseOrderVerdict(raw), nil
}

// Extractor proposes (code, quantity) pairs for the current turn.
type Extractor struct {
	c      *caller
	prompt Prompt
}

// Extract returns the raw model output; parse it with orders.ParseProposals.
func (e *Extractor) Extract(ctx context.Context, history, message string) (string, error) {
	return e.c.generate(ctx, "extract_items", e.prompt, vars{History: history, Message: message})
}

// Assistant produces the free-form reply on behalf of an operator.
type Assistant struct {
	c      *caller
	prompt Prompt
}

// Reply returns the raw model output; parse it with orders.ParseAssistantReply.
func (a *Assistant) Reply(ctx context.Context, operatorName, history, message string) (string, error) {
	return a.c.generate(ctx, "freeform_reply", a.prompt, vars{History: history, Message: message, Operator: operatorName})
}
