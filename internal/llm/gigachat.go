package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Role1776/gigago"
	"go.uber.org/zap"
)

const gigaChatSystemInstruction = `Ты бухгалтер-помощник. Ты проверяешь, является ли операция расходом бизнеса, и отвечаешь строго одним JSON объектом без markdown и комментариев.`

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	Model              string
	InsecureSkipVerify bool
}

type GigaChatProvider struct {
	client *gigago.Client
	model  *gigago.GenerativeModel
	name   string
}

func NewGigaChatProvider(ctx context.Context, cfg GigaChatConfig, logger *zap.Logger) (*GigaChatProvider, error) {
	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "GigaChat"
	}
	model := client.GenerativeModel(modelName)
	model.SystemInstruction = gigaChatSystemInstruction
	model.Temperature = 0.1

	return &GigaChatProvider{client: client, model: model, name: modelName}, nil
}

func (p *GigaChatProvider) Name() string  { return "gigachat" }
func (p *GigaChatProvider) Model() string { return p.name }

func (p *GigaChatProvider) Complete(ctx context.Context, prompt string) (string, error) {
	messages := []gigago.Message{
		{Role: gigago.RoleUser, Content: prompt},
	}

	resp, err := p.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from GigaChat")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *GigaChatProvider) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
