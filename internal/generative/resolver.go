// Package generative resolves unknown ingredient pairs by asking a hosted
// language model to invent the result.
package generative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dyluth/crucible/internal/credential"
	"github.com/dyluth/crucible/pkg/alchemy"
)

// Defaults for the Gemini generateContent endpoint.
const (
	DefaultEndpoint        = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel           = "gemini-2.5-flash"
	DefaultMaxOutputTokens = 1024
	DefaultTemperature     = 1.0
	DefaultTimeout         = 30 * time.Second
)

var (
	// ErrNoCredential means no credential source yielded an API key.
	ErrNoCredential = errors.New("no generative credential available")

	// ErrTransport means the request itself failed: network error, timeout,
	// non-2xx status or an unreadable response envelope.
	ErrTransport = errors.New("generative request failed")
)

// Config configures the resolver.
type Config struct {
	Endpoint        string
	Model           string
	MaxOutputTokens int
	Temperature     float64
	Timeout         time.Duration
	HTTPClient      *http.Client
}

// Credentials resolves the API key. Implemented by *credential.Chain.
type Credentials interface {
	Resolve(ctx context.Context) (credential.Credential, bool)
	Has(ctx context.Context) bool
}

// Resolver is the generative fallback for pairs without a recipe or cache entry.
type Resolver struct {
	cfg         Config
	credentials Credentials
}

// New builds a resolver, filling unset config fields with defaults.
func New(cfg Config, creds Credentials) *Resolver {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Resolver{cfg: cfg, credentials: creds}
}

// HasCredential reports whether a credential is currently resolvable.
// Never performs network I/O.
func (r *Resolver) HasCredential(ctx context.Context) bool {
	return r.credentials != nil && r.credentials.Has(ctx)
}

// Resolve asks the model what a and b combine into.
//
// The returned Result is always usable and is {Success: false} on every
// failure path. The error only classifies why: ErrNoCredential, or
// ErrTransport for failures worth retrying later. A reply that cannot be
// parsed, or that declines the mix, is a plain {Success: false} with a nil
// error. Resolve never writes to any cache.
func (r *Resolver) Resolve(ctx context.Context, a, b alchemy.Element) (alchemy.Result, error) {
	if r.credentials == nil {
		return alchemy.Failure(), ErrNoCredential
	}
	cred, ok := r.credentials.Resolve(ctx)
	if !ok {
		return alchemy.Failure(), ErrNoCredential
	}

	text, err := r.generate(ctx, cred.Value, Prompt(a.Name, b.Name))
	if err != nil {
		return alchemy.Failure(), fmt.Errorf("%w: %v", ErrTransport, err)
	}

	return ParseReply(text, a.Name, b.Name), nil
}

// Prompt builds the instruction sent for one pair.
func Prompt(a, b string) string {
	return fmt.Sprintf(`Mix: %s + %s.
Return a single JSON object.
Structure: { "success": true, "name": "Result Name", "emoji": "🔥", "description": "Short desc", "color": "#hex" }
If invalid mix, success: false. Be creative. NO MARKDOWN.`, a, b)
}

// reply is the JSON payload the model is asked to produce.
type reply struct {
	Success     bool   `json:"success"`
	Name        string `json:"name"`
	Emoji       string `json:"emoji"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// ExtractJSON returns the substring from the first '{' to the last '}'.
// Models sometimes wrap the object in prose or code fences.
func ExtractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseReply turns model output into a Result. Anything short of a well-formed
// object with success:true and a non-empty name is a failure.
func ParseReply(text, a, b string) alchemy.Result {
	raw, ok := ExtractJSON(text)
	if !ok {
		return alchemy.Failure()
	}

	var rep reply
	if err := json.Unmarshal([]byte(raw), &rep); err != nil {
		return alchemy.Failure()
	}

	name := alchemy.CleanName(rep.Name)
	if !rep.Success || name == "" {
		return alchemy.Failure()
	}

	el := alchemy.Template{
		Name:        name,
		Emoji:       strings.TrimSpace(rep.Emoji),
		Description: strings.TrimSpace(rep.Description),
		Color:       strings.TrimSpace(rep.Color),
	}.Materialize(a, b)
	return alchemy.Succeeded(el)
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	Temperature      float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// generate performs one generateContent call and returns the concatenated text parts.
func (r *Resolver) generate(ctx context.Context, apiKey, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			MaxOutputTokens:  r.cfg.MaxOutputTokens,
			Temperature:      r.cfg.Temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(r.cfg.Endpoint, "/"), r.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// The key travels only in this header and is never echoed in errors.
	req.Header.Set("x-goog-api-key", apiKey)

	res, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("generate request status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}

	var payload generateResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}

	var text strings.Builder
	for _, cand := range payload.Candidates {
		for _, p := range cand.Content.Parts {
			text.WriteString(p.Text)
		}
		if text.Len() > 0 {
			break
		}
	}
	return text.String(), nil
}
