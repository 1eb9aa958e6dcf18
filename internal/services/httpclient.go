package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	listHTTPTimeout    = 10 * time.Second
)

// apiCall describes one outbound JSON request
type apiCall struct {
	method  string
	url     string
	headers map[string]string
	payload any
	timeout time.Duration
}

// apiResponse is the raw answer of an apiCall
type apiResponse struct {
	status int
	body   []byte
}

func (r apiResponse) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (r apiResponse) decode(v any) error {
	if len(r.body) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.body, v)
}

func newAgent(method, url string) *fiber.Agent {
	switch method {
	case fiber.MethodPost:
		return fiber.Post(url)
	case fiber.MethodPut:
		return fiber.Put(url)
	case fiber.MethodPatch:
		return fiber.Patch(url)
	case fiber.MethodDelete:
		return fiber.Delete(url)
	default:
		return fiber.Get(url)
	}
}

// do sends the call through a fiber client Agent. A non-nil error means the
// request never produced an HTTP status.
func (c apiCall) do() (apiResponse, error) {
	agent := newAgent(c.method, c.url)
	for k, v := range c.headers {
		agent.Set(k, v)
	}
	if c.payload != nil {
		agent.JSON(c.payload)
	}
	timeout := c.timeout
	if timeout == 0 {
		timeout = defaultHTTPTimeout
	}
	agent.Timeout(timeout)

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return apiResponse{}, errors.Join(errs...)
	}
	return apiResponse{status: status, body: body}, nil
}

// isTimeout reports whether err came from a fasthttp deadline
func isTimeout(err error) bool {
	return errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout)
}

// apiErrorMessage pulls a human message out of a provider error body
func apiErrorMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if s, ok := envelope.Error.(string); ok && s != "" {
			return s
		}
	}
	if len(body) > 200 {
		return string(body[:200])
	}
	return string(body)
}
