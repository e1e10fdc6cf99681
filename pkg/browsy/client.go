package browsy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/harun/browsy/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SessionHeader carries the browsy session token on requests and responses
const SessionHeader = "X-Browsy-Session"

const defaultRequestTimeout = 60 * time.Second

// Client is a stateless HTTP client for the browsy REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for a browsy server on 127.0.0.1:port
func NewClient(port int) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}
}

// BaseURL returns the server address this client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health calls GET /health
func (c *Client) Health(ctx context.Context) (*Response, error) {
	return c.do(ctx, "health", apiRequest{method: http.MethodGet, path: "/health"}, "")
}

// Do executes a typed operation. An empty session starts a new browsy session.
func (c *Client) Do(ctx context.Context, op Operation, session string) (*Response, error) {
	return c.do(ctx, string(op.Name()), op.request(), session)
}

func (c *Client) Browse(ctx context.Context, p BrowseParams, session string) (*Response, error) {
	return c.Do(ctx, p, session)
}

func (c *Client) Click(ctx context.Context, p ClickParams, session string) (*Response, error) {
	return c.Do(ctx, p, session)
}

func (c *Client) TypeText(ctx context.Context, p TypeTextParams, session string) (*Response, error) {
	return c.Do(ctx, p, session)
}

func (c *Client) Check(ctx context.Context, p CheckParams, session string) (*Response, error) {
	return c.Do(ctx, p, session)
}

func (c *Client) Uncheck(ctx context.Context, p UncheckParams, session string) (*Response, error) {
	return c.Do(ctx, p, session)
}

func (c *Client) Select(ctx context.Context, p SelectParams, session string) (*Response, error) {
	return c.Do(ctx, p, session)
}

func (c *Client) Search(ctx context.Context, p SearchParams, session string) (*Response, error) {
	return c.Do(ctx, p, session)
}

func (c *Client) Login(ctx context.Context, p LoginParams, session string) (*Response, error) {
	return c.Do(ctx, p, session)
}

func (c *Client) EnterCode(ctx context.Context, p EnterCodeParams, session string) (*Response, error) {
	return c.Do(ctx, p, session)
}

func (c *Client) Find(ctx context.Context, p FindParams, session string) (*Response, error) {
	return c.Do(ctx, p, session)
}

func (c *Client) GetPage(ctx context.Context, p GetPageParams, session string) (*Response, error) {
	return c.Do(ctx, p, session)
}

func (c *Client) PageInfo(ctx context.Context, session string) (*Response, error) {
	return c.Do(ctx, PageInfoParams{}, session)
}

func (c *Client) Tables(ctx context.Context, session string) (*Response, error) {
	return c.Do(ctx, TablesParams{}, session)
}

func (c *Client) Back(ctx context.Context, session string) (*Response, error) {
	return c.Do(ctx, BackParams{}, session)
}

func (c *Client) do(ctx context.Context, opName string, req apiRequest, session string) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"browsy.client",
		"client.request",
		attribute.String("operation", opName),
		attribute.String("http.method", req.method),
		attribute.String("http.path", req.path),
	)
	defer span.End()

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to encode %s request: %w", opName, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to build %s request: %w", opName, err)
	}
	if session != "" {
		httpReq.Header.Set(SessionHeader, session)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &Error{
			Code:    ErrCodeTransport,
			Message: fmt.Sprintf("browsy %s request failed: %v", opName, err),
			Err:     err,
		}
	}
	defer res.Body.Close()

	text, err := io.ReadAll(res.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &Error{
			Code:    ErrCodeTransport,
			Message: fmt.Sprintf("failed to read browsy %s response: %v", opName, err),
			Err:     err,
		}
	}

	responseSession := res.Header.Get(SessionHeader)
	if responseSession == "" {
		responseSession = session
	}

	response := &Response{
		OK:      res.StatusCode >= 200 && res.StatusCode < 300,
		Status:  res.StatusCode,
		Session: responseSession,
		Body:    string(text),
	}

	// Plain-text bodies are normal; JSON is best effort
	var parsed any
	if err := json.Unmarshal(text, &parsed); err == nil {
		response.JSON = parsed
	}

	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))
	if !response.OK {
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", res.StatusCode))
	}

	return response, nil
}
