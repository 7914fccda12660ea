package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/storefront-cart/internal/circuitbreaker"
	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/internal/logger"
)

var (
	// ErrTransport wraps failures where no HTTP response was obtained.
	ErrTransport = errors.New("remote transport failure")
	errServer    = errors.New("remote server failure")
)

// StatusError is a non-2xx answer from the cart API.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Unauthorized reports whether the API rejected the credential.
func (e *StatusError) Unauthorized() bool {
	return e.Code == http.StatusUnauthorized
}

type Config struct {
	BaseURL string                `yaml:"base_url"`
	Timeout time.Duration         `yaml:"timeout"`
	Breaker circuitbreaker.Config `yaml:"breaker"`
}

type CreateLineRequest struct {
	MemberID  string           `json:"memberId"`
	ProductID domain.ProductID `json:"productId"`
	Qty       int              `json:"qty"`
}

type UpdateLineRequest struct {
	ID        string           `json:"id"`
	MemberID  string           `json:"memberId"`
	ProductID domain.ProductID `json:"productId"`
	Qty       int              `json:"qty"`
}

// Client talks to the cart API over HTTP JSON.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	breaker *circuitbreaker.Breaker[*http.Response]
	log     logrus.FieldLogger
}

const maxErrorBody = 4 << 10

func NewClient(cfg Config, log logrus.FieldLogger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid cart api base url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: circuitbreaker.New[*http.Response]("cart-api", cfg.Breaker, log, isBreakerFailure),
		log:     log,
	}, nil
}

func isBreakerFailure(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, errServer)
}

func (c *Client) WhoAmI(ctx context.Context, token string) (domain.Member, error) {
	var m domain.Member
	if err := c.do(ctx, token, http.MethodGet, "/api/member/info", nil, &m); err != nil {
		return domain.Member{}, err
	}
	if strings.TrimSpace(m.ID) == "" {
		return domain.Member{}, &StatusError{Method: http.MethodGet, Path: "/api/member/info", Code: http.StatusUnauthorized, Body: "no member id"}
	}
	return m, nil
}

func (c *Client) ListLines(ctx context.Context, token, memberID string) ([]domain.CartLine, error) {
	var lines []domain.CartLine
	path := "/api/cart/list/" + url.PathEscape(memberID)
	if err := c.do(ctx, token, http.MethodGet, path, nil, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// CreateLine returns whatever line the API echoes back; its ID may be empty.
func (c *Client) CreateLine(ctx context.Context, token string, req CreateLineRequest) (domain.CartLine, error) {
	var line domain.CartLine
	if err := c.do(ctx, token, http.MethodPost, "/api/cart/add", req, &line); err != nil {
		return domain.CartLine{}, err
	}
	return line, nil
}

func (c *Client) UpdateLine(ctx context.Context, token string, req UpdateLineRequest) error {
	return c.do(ctx, token, http.MethodPut, "/api/cart/update", req, nil)
}

func (c *Client) DeleteLine(ctx context.Context, token, lineID string) error {
	return c.do(ctx, token, http.MethodDelete, "/api/cart/remove/"+url.PathEscape(lineID), nil, nil)
}

func (c *Client) do(ctx context.Context, token, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
		payload = b
	}

	resp, err := c.breaker.Do(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if resp.StatusCode >= 500 {
			return resp, errServer
		}
		return resp, nil
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp == nil {
		if err == nil {
			err = ErrTransport
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrTransport, path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		// a create or update that answers with a message string still succeeded
		if method != http.MethodGet {
			c.log.WithField("path", path).Debug("ignoring non-json response body")
			return nil
		}
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
