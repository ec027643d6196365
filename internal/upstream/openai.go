package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ncerr "voxrelay/internal/errors"
)

// Defaults for the OpenAI chat-completions generator.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"

	providerOpenAI = "openai"
	sseDone        = "[DONE]"
)

// OpenAI streams chat completions.  It holds no credential: the key of
// each Request is sent with that request only.
type OpenAI struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (o *OpenAI) fail(err error) error {
	return &ncerr.UpstreamError{Provider: providerOpenAI, Err: err}
}

// Stream sends the request and returns once the response headers have
// arrived.  Non-2xx responses become an UpstreamError carrying the
// response body.
func (o *OpenAI) Stream(ctx context.Context, req Request) (TokenStream, error) {
	if req.APIKey == "" {
		return nil, o.fail(fmt.Errorf("api key is empty"))
	}

	base := o.BaseURL
	if base == "" {
		base = DefaultOpenAIBaseURL
	}
	model := o.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Stream: true,
	})
	if err != nil {
		return nil, o.fail(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(base, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, o.fail(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, o.fail(fmt.Errorf("perform request: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		limited, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, o.fail(fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(limited))))
	}

	return &sseStream{body: resp.Body, scanner: newSSEScanner(resp.Body), fail: o.fail}, nil
}

// sseStream turns chat-completion chunks into fragments.
type sseStream struct {
	body    io.ReadCloser
	scanner *sseScanner
	fail    func(error) error
	done    bool
}

func (s *sseStream) Next(ctx context.Context) (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !s.scanner.Scan() {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return "", ctxErr
				}
				return "", s.fail(fmt.Errorf("read stream: %w", err))
			}
			return "", io.EOF
		}

		data := s.scanner.Data()
		if data == sseDone {
			s.done = true
			return "", io.EOF
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			s.done = true
			return "", s.fail(fmt.Errorf("stream error: %s", chunk.Error.Message))
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}
}

func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}
