package analyzer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/agent-api/core"
	"github.com/agent-api/core/agent"
	"github.com/agent-api/core/agent/bootstrap"
	"github.com/agent-api/ollama/client"
	"github.com/cyclopcam/www"
	"github.com/go-logr/logr"
)

const systemPrompt = "You are an object detection assistant. You locate objects in images " +
	"and answer only with JSON bounding boxes, never with prose."

// A single question and answer; an empty answer fails instead of looping.
const maxAgentSteps = 2

var errStreamingUnsupported = errors.New("streaming is not supported by the labeling provider")

// AgentConfig selects the Ollama server and vision model backing the agent
type AgentConfig struct {
	Model   string
	BaseURL string
	Port    int
}

func (c AgentConfig) apiURL() string {
	return fmt.Sprintf("%s:%d/api", strings.TrimSuffix(c.BaseURL, "/"), c.Port)
}

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaProvider is a core.Provider speaking to the configured Ollama server.
// The system prompt is sent with every request and replies are constrained
// to JSON.
type OllamaProvider struct {
	client *client.OllamaClient
	model  *core.Model
	system string
	logger *slog.Logger
}

func NewOllamaProvider(logger *slog.Logger, cfg AgentConfig, system string) *OllamaProvider {
	return &OllamaProvider{
		client: client.NewClient(client.WithBaseURL(cfg.apiURL())),
		model:  &core.Model{ID: cfg.Model},
		system: system,
		logger: logger,
	}
}

func (p *OllamaProvider) GetCapabilities(ctx context.Context) (*core.Capabilities, error) {
	return &core.Capabilities{
		SupportsChat:   true,
		SupportsImages: true,
		DefaultModel:   p.model.ID,
	}, nil
}

func (p *OllamaProvider) UseModel(ctx context.Context, model *core.Model) error {
	p.model = model
	return nil
}

func (p *OllamaProvider) Generate(ctx context.Context, opts *core.GenerateOptions) (*core.Message, error) {
	messages := []*client.Message{{Role: client.RoleSystem, Content: p.system}}
	for _, m := range opts.Messages {
		messages = append(messages, toOllamaMessage(m))
	}

	format := "json"
	p.logger.Debug("Sending chat request", "model", p.model.ID, "messages", len(messages))
	resp, err := p.client.Chat(ctx, &client.ChatRequest{
		Model:    p.model.ID,
		Messages: messages,
		Format:   &format,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("empty chat response from ollama")
	}

	return &core.Message{
		Role:    core.AssistantMessageRole,
		Content: resp.Message.Content,
	}, nil
}

func (p *OllamaProvider) GenerateStream(ctx context.Context, opts *core.GenerateOptions) (<-chan *core.Message, <-chan string, <-chan error) {
	errs := make(chan error, 1)
	errs <- errStreamingUnsupported
	close(errs)
	return nil, nil, errs
}

func toOllamaMessage(m *core.Message) *client.Message {
	role := client.RoleUser
	switch m.Role {
	case core.AssistantMessageRole:
		role = client.RoleAssistant
	case core.ToolMessageRole:
		role = client.RoleTool
	case core.SystemMessageRole:
		role = client.RoleSystem
	}

	var images []string
	for _, img := range m.Images {
		images = append(images, img.Base64Encoding)
	}
	return &client.Message{Role: role, Content: m.Content, Images: images}
}

// NewAgent checks that Ollama is reachable and returns a runner for the
// configured vision model.
func NewAgent(ctx context.Context, logger *slog.Logger, cfg AgentConfig) (*AgentRunner, error) {
	// Check if Ollama is running
	if err := checkServer(ctx, logger, cfg); err != nil {
		return nil, err
	}

	provider := NewOllamaProvider(logger, cfg, systemPrompt)
	return NewAgentRunner(logger, provider), nil
}

func checkServer(ctx context.Context, logger *slog.Logger, cfg AgentConfig) error {
	url := cfg.apiURL() + "/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	var tags ollamaTags
	if err := www.FetchJSON(req, &tags); err != nil {
		return fmt.Errorf("ollama is not reachable at %s: %w", url, err)
	}

	for _, m := range tags.Models {
		if m.Name == cfg.Model {
			return nil
		}
	}
	logger.Warn("Model not pulled on the Ollama server", "model", cfg.Model)
	return nil
}

// AgentRunner sends one prompt plus image through a vision agent. Every
// question gets a fresh agent so earlier images never leak into the
// conversation memory.
type AgentRunner struct {
	provider core.Provider
	logger   logr.Logger
}

func NewAgentRunner(logger *slog.Logger, provider core.Provider) *AgentRunner {
	return &AgentRunner{
		provider: provider,
		logger:   logr.FromSlogHandler(logger.Handler()),
	}
}

// Ask returns the content of the model's final message
func (r *AgentRunner) Ask(ctx context.Context, prompt, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", err
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(imagePath)))

	a, err := agent.NewAgent(
		bootstrap.WithProvider(r.provider),
		bootstrap.WithLogger(&r.logger),
		bootstrap.WithSystemPrompt(systemPrompt),
		bootstrap.WithMaxSteps(maxAgentSteps),
	)
	if err != nil {
		return "", err
	}

	agg, err := a.Run(
		ctx,
		agent.WithInput(prompt),
		agent.WithImageBase64(base64.StdEncoding.EncodeToString(data), mimeType),
	)
	if err != nil {
		return "", err
	}

	// Get the model's response (not the prompt)
	msg := agg.Pop()
	if msg == nil || msg.Role != core.AssistantMessageRole {
		return "", fmt.Errorf("no response messages received from model")
	}
	return msg.Content, nil
}
