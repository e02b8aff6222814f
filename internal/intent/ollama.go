package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orbit/internal/contexthub"
)

// Luna persona for the Ollama path. The model answers in casual Indonesian
// and must only speak up when it genuinely helps.
const systemPrompt = `Kamu adalah Luna, AI assistant untuk ORBIT.
Kepribadian: Ramah, informatif, dan pendukung.
Gaya bahasa: Santai namun profesional dalam Bahasa Indonesia.
Suara: Tenang dan meyakinkan.

Tugasmu: Mengamati konteks user dan memberikan saran HANYA jika benar-benar dibutuhkan.
Jangan mengganggu atau spam. Bersikap humble dan tidak memaksa.`

// Model fallback order when the configured model is not on the server.
var preferredModels = []string{"llama3.1:8b", "gemma3:4b"}

// OllamaClient talks to a local Ollama server over its HTTP API.
type OllamaClient struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	nowFn      func() time.Time

	mu        sync.Mutex
	model     string
	available bool
}

// NewOllamaClient builds a client; call CheckHealth before first use.
func NewOllamaClient(baseURL, model string, timeout time.Duration, logger *zap.Logger) *OllamaClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		nowFn:      time.Now,
	}
}

// Available reports the result of the last health check.
func (c *OllamaClient) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

// Model returns the model in use (possibly autodetected).
func (c *OllamaClient) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// CheckHealth probes the model listing endpoint. If the configured model is
// missing it falls back to llama3.1:8b, then gemma3:4b, then the first model
// listed.
func (c *OllamaClient) CheckHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return c.setUnavailable("health request build failed", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.setUnavailable("ollama unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.setUnavailable("ollama health check", fmt.Errorf("status %d", resp.StatusCode))
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return c.setUnavailable("ollama tags decode failed", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		} else if m.Model != "" {
			names = append(names, m.Model)
		}
	}
	if len(names) == 0 {
		return c.setUnavailable("no ollama models found", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !containsModel(names, c.model) {
		replaced := names[0]
		for _, pref := range preferredModels {
			if containsModel(names, pref) {
				replaced = pref
				break
			}
		}
		c.logger.Info("configured model not found, using fallback",
			zap.String("configured", c.model), zap.String("fallback", replaced))
		c.model = replaced
	}

	c.available = true
	c.logger.Debug("ollama health check passed", zap.String("model", c.model))
	return true
}

func containsModel(names []string, model string) bool {
	for _, n := range names {
		if n == model || n == model+":latest" {
			return true
		}
	}
	return false
}

func (c *OllamaClient) setUnavailable(msg string, err error) bool {
	c.mu.Lock()
	c.available = false
	c.mu.Unlock()
	c.logger.Warn(msg, zap.Error(err))
	return false
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// llmReply is the structured record the model is asked to emit.
type llmReply struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message"`
	Reasoning  string  `json:"reasoning"`
}

// Generate asks the model for an intent over the snapshot. Transport errors,
// non-200 statuses, and unparseable bodies are all returned as errors so the
// brain can degrade to the fallback path.
func (c *OllamaClient) Generate(ctx context.Context, snap contexthub.Snapshot) (Intent, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(generateRequest{
		Model:   c.Model(),
		Prompt:  c.buildPrompt(snap),
		System:  systemPrompt,
		Stream:  false,
		Format:  "json",
		Options: generateOptions{Temperature: 0.7},
	})
	if err != nil {
		return None(), fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return None(), fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return None(), fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return None(), fmt.Errorf("ollama API error: status %d: %s", resp.StatusCode, string(raw))
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return None(), fmt.Errorf("failed to decode ollama response: %w", err)
	}

	var reply llmReply
	if err := json.Unmarshal([]byte(gen.Response), &reply); err != nil {
		return None(), fmt.Errorf("failed to parse model output: %w", err)
	}

	// Reasoning is internal only: log and strip before the intent leaves.
	c.logger.Debug("llm reasoning (internal)", zap.String("reasoning", reply.Reasoning))

	return Intent{
		ID:         uuid.NewString(),
		Kind:       ParseKind(reply.Intent),
		Confidence: clampConfidence(reply.Confidence),
		Message:    reply.Message,
		Reasoning:  "",
		CreatedAt:  c.nowFn(),
	}, nil
}

func (c *OllamaClient) buildPrompt(snap contexthub.Snapshot) string {
	app := snap.ActiveApp
	if app == "" {
		app = "Unknown"
	}
	return fmt.Sprintf(`Analisis konteks user berikut:

Context:
- Active window: %s
- Idle time: %d seconds
- Recent file changes: %d
- Time of day: %s

Based on this context, decide on ONE action:
1. "suggest_help" - User might need assistance
2. "none" - No action needed (user is focused)

ALLOWED INTENTS (v0.2): suggest_help, none ONLY

Respond in JSON:
{
  "intent": "suggest_help",
  "confidence": 0.85,
  "reasoning": "User idle 5min in coding app, might be stuck",
  "message": "Kamu lagi stuck? Mau aku bantu debug atau cari solusi?"
}

Field "reasoning" is strictly internal and never surfaced to UI or persisted.
Keep message in Bahasa Indonesia, casual tone, max 80 chars.`,
		app, snap.IdleSeconds, snap.RecentFileChanges, c.nowFn().Format("15:04"))
}
