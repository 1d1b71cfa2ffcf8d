package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/inkwell-app/inkwell/internal/bus"
	"github.com/inkwell-app/inkwell/internal/config"
)

// Message is one turn in Ollama chat format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Status reports whether Ollama is reachable and the chat model is pulled.
type Status struct {
	Running        bool   `json:"running"`
	ModelAvailable bool   `json:"modelAvailable"`
	ModelName      string `json:"modelName"`
	Error          string `json:"error,omitempty"`
}

// Client talks to a local Ollama instance over its HTTP API. Streaming
// responses are published to the event bus; the start call only initiates
// the stream.
type Client struct {
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
	bus        *bus.EventBus
}

func NewClient(cfg config.ProviderConfig, b *bus.EventBus) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultOllamaBaseURL
	}
	model := cfg.ChatModel
	if model == "" {
		model = config.DefaultChatModel
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = config.DefaultChatTimeoutSec * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxTokensPerTurn
	}

	return &Client{
		baseURL:    baseURL,
		model:      model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
		bus:        b,
	}
}

type chatRequest struct {
	Model    string       `json:"model"`
	Messages []Message    `json:"messages"`
	Stream   bool         `json:"stream"`
	Options  *chatOptions `json:"options,omitempty"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

type chatResponse struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// StartStream initiates a streaming completion. The HTTP exchange is opened
// synchronously so connection and status failures surface to the caller;
// response chunks arrive on the bus from a reader goroutine. sources are
// echoed back on the done event for citation display.
func (c *Client) StartStream(ctx context.Context, messages []Message, sources []bus.SourceReference) error {
	resp, err := c.postChat(ctx, chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
		Options: &chatOptions{
			Temperature: 0.7,
			TopP:        0.9,
			NumPredict:  c.maxTokens,
		},
	})
	if err != nil {
		return err
	}

	go c.readStream(resp.Body, sources)
	return nil
}

func (c *Client) readStream(body io.ReadCloser, sources []bus.SourceReference) {
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			log.Printf("[llm] skipping malformed stream line: %v", err)
			continue
		}
		if chunk.Message != nil && chunk.Message.Content != "" {
			c.bus.PublishStream(bus.StreamEvent{Kind: bus.StreamChunk, Text: chunk.Message.Content})
		}
		if chunk.Done {
			c.bus.PublishStream(bus.StreamEvent{Kind: bus.StreamDone, Sources: sources})
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.bus.PublishStream(bus.StreamEvent{Kind: bus.StreamError, Err: fmt.Sprintf("stream read: %v", err)})
		return
	}
	// Body ended without a done marker: treat as a broken stream.
	c.bus.PublishStream(bus.StreamEvent{Kind: bus.StreamError, Err: "stream ended before completion"})
}

// Complete runs a non-streaming completion, used for title generation.
func (c *Client) Complete(ctx context.Context, messages []Message, temperature float64, numPredict int) (string, error) {
	resp, err := c.postChat(ctx, chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options: &chatOptions{
			Temperature: temperature,
			TopP:        0.9,
			NumPredict:  numPredict,
		},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("parse completion: %w", err)
	}
	if out.Message == nil {
		return "", nil
	}
	return strings.TrimSpace(out.Message.Content), nil
}

const titleSystemPrompt = "You are a helpful assistant that generates concise titles for journal entries. " +
	"Generate a 2-5 word title that captures the essence of the entry. " +
	"Respond with ONLY the title, no quotes or extra text."

// GenerateTitle produces a short title for an entry's content.
func (c *Client) GenerateTitle(ctx context.Context, content string) (string, error) {
	title, err := c.Complete(ctx, []Message{
		{Role: "system", Content: titleSystemPrompt},
		{Role: "user", Content: "Generate a title for this journal entry:\n\n" + content},
	}, 0.3, 20)
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}
	return strings.Trim(title, `"`), nil
}

// CheckStatus reports Ollama availability and whether the chat model is
// present locally.
func (c *Client) CheckStatus(ctx context.Context) Status {
	status := Status{ModelName: c.model}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		status.Error = "Ollama is not running. Start it with 'ollama serve'."
		return status
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		status.Error = fmt.Sprintf("Ollama returned status %d", resp.StatusCode)
		return status
	}
	status.Running = true

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		status.Error = fmt.Sprintf("parse models response: %v", err)
		return status
	}

	base := strings.SplitN(c.model, ":", 2)[0]
	for _, m := range tags.Models {
		if strings.HasPrefix(m.Name, base) {
			status.ModelAvailable = true
			break
		}
	}
	if !status.ModelAvailable {
		status.Error = fmt.Sprintf("Model %q not found. Run 'ollama pull %s'.", c.model, c.model)
	}
	return status
}

func (c *Client) postChat(ctx context.Context, reqBody chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}
