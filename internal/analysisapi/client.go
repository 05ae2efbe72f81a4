package analysisapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"

	"bigscreen/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options configures a Client.
type Options struct {
	BaseURL   string
	Token     string        // sent as a bearer token when set
	Timeout   time.Duration // per request, defaults to 30s
	RateLimit int           // requests per second, 0 disables limiting

	HTTPClient *http.Client // optional, overrides Timeout
}

// Client talks to the analysis backend. It never retries.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter ratelimit.Limiter
}

// envelope wraps every backend response.
type envelope struct {
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
}

type taskStarted struct {
	TaskID string `json:"taskId"`
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("analysis backend base URL is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid analysis backend base URL: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := ratelimit.NewUnlimited()
	if opts.RateLimit > 0 {
		limiter = ratelimit.New(opts.RateLimit)
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    httpClient,
		limiter: limiter,
	}, nil
}

// --- Stage submission ---

func (c *Client) StartKeywordExtraction(ctx context.Context, req models.KeywordExtractionRequest) (string, error) {
	return c.start(ctx, "/api/analysis/keyword-extraction/start", req)
}

func (c *Client) StartPreprocessing(ctx context.Context, req models.PreprocessingRequest) (string, error) {
	return c.start(ctx, "/api/analysis/preprocessing/start", req)
}

func (c *Client) StartClassification(ctx context.Context, req models.ClassificationRequest) (string, error) {
	return c.start(ctx, "/api/analysis/classification/start", req)
}

func (c *Client) start(ctx context.Context, path string, body interface{}) (string, error) {
	var started taskStarted
	if err := c.do(ctx, http.MethodPost, path, body, &started); err != nil {
		return "", err
	}
	if started.TaskID == "" {
		return "", models.ErrEmptyTaskID
	}
	return started.TaskID, nil
}

// --- Progress ---

func (c *Client) KeywordExtractionProgress(ctx context.Context, taskID string) (*models.KeywordExtractionProgress, error) {
	var p models.KeywordExtractionProgress
	if err := c.do(ctx, http.MethodGet, "/api/analysis/keyword-extraction/progress/"+url.PathEscape(taskID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) PreprocessingProgress(ctx context.Context, taskID string) (*models.PreprocessProgress, error) {
	var p models.PreprocessProgress
	if err := c.do(ctx, http.MethodGet, "/api/analysis/preprocessing/progress/"+url.PathEscape(taskID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ClassificationProgress(ctx context.Context, taskID string) (*models.ClassificationTask, error) {
	var t models.ClassificationTask
	if err := c.do(ctx, http.MethodGet, "/api/analysis/classification/progress/"+url.PathEscape(taskID), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// --- Results ---

func (c *Client) ConfusionMatrix(ctx context.Context, taskID string) (*models.ConfusionMatrix, error) {
	var m models.ConfusionMatrix
	if err := c.do(ctx, http.MethodGet, "/api/analysis/confusion-matrix/"+url.PathEscape(taskID), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) CategoryStats(ctx context.Context, taskID string) (models.CategoryStats, error) {
	stats := models.CategoryStats{}
	if err := c.do(ctx, http.MethodGet, "/api/analysis/category-stats/"+url.PathEscape(taskID), nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// --- Catalog and task control ---

func (c *Client) DataSources(ctx context.Context) ([]models.DataSource, error) {
	var sources []models.DataSource
	if err := c.do(ctx, http.MethodGet, "/api/analysis/data-sources", nil, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

func (c *Client) SourceCategoryMapping(ctx context.Context) (map[string][]string, error) {
	mapping := map[string][]string{}
	if err := c.do(ctx, http.MethodGet, "/api/analysis/source-category-mapping", nil, &mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

// StopTask asks the backend to abandon a running task.
func (c *Client) StopTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/api/analysis/tasks/"+url.PathEscape(taskID)+"/stop", nil, nil)
}

// do performs one exchange and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.limiter.Take()
	log.Debugf("analysis api: %s %s", method, path)

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := statusMessage(resp.StatusCode)
		if decodeErr == nil && env.Message != "" {
			msg = env.Message
		}
		return &RequestError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s response: %w", path, decodeErr)
	}

	if env.Code != http.StatusOK {
		msg := env.Message
		if msg == "" {
			msg = msgOperationFailed
		}
		return &APIError{Code: env.Code, Message: msg}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", path, err)
	}
	return nil
}

func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.Canceled) {
			return &RequestError{Message: msgCancelled, Err: ctxErr}
		}
		return &RequestError{Message: msgTimeout, Err: ctxErr}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &RequestError{Message: msgTimeout, Err: err}
	}
	return &RequestError{Message: msgNoResponse, Err: err}
}
