package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	llmerrors "github.com/ahrav/go-llmware/internal/llm/errors"
)

// Provider adapter errors.
var (
	// ErrUnsupportedProvider is returned by NewBackend for names without an adapter.
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// maxErrorBody bounds how much of a failed response is read for the message.
const maxErrorBody = 64 << 10

// statusError converts a non-2xx response into a ProviderError.
// It understands the OpenAI {"error":{...}} shape and the Ollama
// {"error":"..."} shape and falls back to the raw body.
func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	message, code, errType := parseErrorBody(body)
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &llmerrors.ProviderError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Type:       llmerrors.ClassifyStatus(resp.StatusCode, firstNonEmpty(code, errType)),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

func parseErrorBody(body []byte) (message, code, errType string) {
	var structured struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &structured); err == nil && structured.Error.Message != "" {
		if structured.Error.Code != nil {
			code = fmt.Sprint(structured.Error.Code)
		}
		return structured.Error.Message, code, structured.Error.Type
	}

	var flat struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && flat.Error != "" {
		return flat.Error, "", ""
	}
	return "", "", ""
}

func parseRetryAfter(v string) int {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}

// transportError wraps a failure to get any response at all.
// Caller cancellation stays visible through Unwrap.
func transportError(provider string, err error, hint string) error {
	errType := llmerrors.ErrorTypeNetwork
	if errors.Is(err, context.DeadlineExceeded) {
		errType = llmerrors.ErrorTypeTimeout
	}
	msg := err.Error()
	if hint != "" {
		msg = msg + ". " + hint
	}
	return &llmerrors.ProviderError{
		Provider: provider,
		Message:  msg,
		Type:     errType,
		Cause:    err,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
