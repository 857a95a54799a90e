// Package agent issues one completion call per routed instruction, building
// the prompt from the role's preset and the conversation history.
package agent

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"chatcrew/internal/config"
	"chatcrew/internal/history"
	"chatcrew/internal/llm"
	"chatcrew/internal/roles"
)

// contextNote tells the model how routed turns are framed in the history.
const contextNote = "The conversation history includes context about who messages are addressed to. " +
	"Pay attention to the conversation flow and context when responding."

// Caller issues a single completion call for one role. Implementations must
// honor ctx cancellation mid-flight and return the transport's error text
// unmodified.
type Caller interface {
	Call(ctx context.Context, role roles.Config, prior []history.Message, message string) (string, error)
}

// OpenAICaller is the production Caller. Roles may override the API key or
// base URL, so clients are created lazily and cached per credential pair.
type OpenAICaller struct {
	defaults config.OpenAIConfig

	mu      sync.Mutex
	clients map[string]llm.Client

	newClient func(apiKey, baseURL string) llm.Client
}

// NewOpenAICaller creates a caller using defaults for roles that carry no
// overrides of their own.
func NewOpenAICaller(defaults config.OpenAIConfig) *OpenAICaller {
	return &OpenAICaller{
		defaults: defaults,
		clients:  make(map[string]llm.Client),
		newClient: func(apiKey, baseURL string) llm.Client {
			return llm.NewClient(apiKey, baseURL)
		},
	}
}

// Call sends message to the role's model together with the prior turns and
// returns the model's answer.
func (c *OpenAICaller) Call(ctx context.Context, role roles.Config, prior []history.Message, message string) (string, error) {
	resp, err := c.clientFor(role).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       role.Engine,
		Messages:    BuildMessages(role.Prompt, prior, message),
		Temperature: role.Temperature,
		MaxTokens:   role.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// BuildMessages assembles the completion request: the role's system prompt,
// the framing note, the prior turns, then the new message. Turns spoken by
// the user stay user turns; everything else (role answers, system
// diagnostics) is presented as assistant output.
func BuildMessages(systemPrompt string, prior []history.Message, message string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(prior)+3)
	msgs = append(msgs,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: contextNote},
	)
	for _, m := range prior {
		role := openai.ChatMessageRoleAssistant
		if m.Speaker == history.SpeakerUser {
			role = openai.ChatMessageRoleUser
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})
}

func (c *OpenAICaller) clientFor(role roles.Config) llm.Client {
	apiKey, baseURL := c.settingsFor(role)

	c.mu.Lock()
	defer c.mu.Unlock()
	key := apiKey + "\x00" + baseURL
	if cl, ok := c.clients[key]; ok {
		return cl
	}
	cl := c.newClient(apiKey, baseURL)
	c.clients[key] = cl
	return cl
}

// settingsFor resolves credentials for a role: its own config first, then a
// role-specific environment override, then the global defaults.
func (c *OpenAICaller) settingsFor(role roles.Config) (apiKey, baseURL string) {
	suffix := strings.ToUpper(role.Name)

	apiKey = role.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY_" + suffix)
	}
	if apiKey == "" {
		apiKey = c.defaults.APIKey
	}

	baseURL = role.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL_" + suffix)
	}
	if baseURL == "" {
		baseURL = c.defaults.BaseURL
	}
	return apiKey, baseURL
}
