package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"example.com/detective_engine/pkg/apperr"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	apiVersion     = "v1beta"
)

// Roles accepted in chat history.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message represents a chat message
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Source is a web page the model cited while grounding its answer.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// GenerateRequest describes one generateContent call.
type GenerateRequest struct {
	Model             string
	SystemInstruction string
	Contents          []Message
	// JSON asks for an application/json response. It is ignored when
	// Search is set because the API rejects the combination.
	JSON   bool
	Search bool
}

// GenerateResponse is the text of the first candidate plus its grounding.
type GenerateResponse struct {
	Text         string
	FinishReason string
	Sources      []Source
}

// Client is a Gemini API client. Text generation goes through the genai
// SDK; realtime audio uses LiveDialer.
type Client struct {
	apiKey  string
	baseURL string
	genai   *genai.Client
}

// Config holds Gemini client configuration
type Config struct {
	APIKey  string
	BaseURL string        // defaults to the public endpoint
	Timeout time.Duration // per request, defaults to 120s
}

// NewClient creates a new Gemini client
func NewClient(ctx context.Context, config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	baseURL := strings.TrimRight(config.BaseURL, "/")

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: bodyRecorder{base: http.DefaultTransport},
		},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL + "/",
			APIVersion: apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{
		apiKey:  config.APIKey,
		baseURL: baseURL,
		genai:   gc,
	}, nil
}

// Generate sends a generateContent request and returns the first candidate.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	contents := make([]*genai.Content, 0, len(req.Contents))
	for _, msg := range req.Contents {
		role := msg.Role
		if role == "" {
			role = RoleUser
		}
		contents = append(contents, genai.NewContentFromText(msg.Text, genai.Role(role)))
	}

	config := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemInstruction}}}
	}
	if req.Search {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	} else if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	raw := &bytes.Buffer{}
	resp, err := c.genai.Models.GenerateContent(context.WithValue(ctx, rawBodyKey{}, raw), req.Model, contents, config)
	if err != nil {
		return nil, classify(ctx, err, raw.String())
	}
	return toResponse(resp), nil
}

// classify maps SDK failures onto the service's error kinds. Anything that
// is neither an API status nor a network failure means the response body
// could not be decoded.
func classify(ctx context.Context, err error, raw string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &apperr.TransportError{
			Op:         "generate",
			StatusCode: apiErr.Code,
			Err:        fmt.Errorf("API error %d: %s", apiErr.Code, apiErr.Message),
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &apperr.TransportError{
			Op:         "generate",
			StatusCode: apiErrPtr.Code,
			Err:        fmt.Errorf("API error %d: %s", apiErrPtr.Code, apiErrPtr.Message),
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || raw == "" {
		return &apperr.TransportError{Op: "generate", Err: err}
	}
	return &apperr.FormatError{Raw: raw, Err: fmt.Errorf("decode response: %w", err)}
}

func toResponse(r *genai.GenerateContentResponse) *GenerateResponse {
	out := &GenerateResponse{}
	if len(r.Candidates) == 0 {
		if r.PromptFeedback != nil {
			out.FinishReason = string(r.PromptFeedback.BlockReason)
		}
		return out
	}

	cand := r.Candidates[0]
	out.FinishReason = string(cand.FinishReason)

	if cand.Content != nil {
		var text strings.Builder
		for _, p := range cand.Content.Parts {
			if p != nil && !p.Thought {
				text.WriteString(p.Text)
			}
		}
		out.Text = text.String()
	}

	if cand.GroundingMetadata != nil {
		seen := make(map[string]bool)
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
				continue
			}
			seen[chunk.Web.URI] = true
			out.Sources = append(out.Sources, Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
		}
	}
	return out
}

type rawBodyKey struct{}

// bodyRecorder copies response bodies into the buffer carried by the
// request context so decode failures can report what the API sent.
type bodyRecorder struct {
	base http.RoundTripper
}

func (r bodyRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if buf, ok := req.Context().Value(rawBodyKey{}).(*bytes.Buffer); ok {
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.TeeReader(resp.Body, buf), resp.Body}
	}
	return resp, nil
}

// Chat sends message after history under systemInstruction and returns the
// reply text. The client keeps no state; callers own the history.
func (c *Client) Chat(ctx context.Context, model, systemInstruction string, history []Message, message string) (string, error) {
	contents := make([]Message, 0, len(history)+1)
	contents = append(contents, history...)
	contents = append(contents, Message{Role: RoleUser, Text: message})

	resp, err := c.Generate(ctx, GenerateRequest{
		Model:             model,
		SystemInstruction: systemInstruction,
		Contents:          contents,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
