package captcha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultAPIBaseURL is the solvecaptcha endpoint.
	DefaultAPIBaseURL = "https://api.solvecaptcha.com"
	// DefaultPollInterval paces res.php polling.
	DefaultPollInterval = 2 * time.Second
	// DefaultMaxPolls bounds how long one image waits for a worker.
	DefaultMaxPolls = 30

	notReady = "CAPCHA_NOT_READY"
	// Solving services answer this when the worker could not read the image.
	unsolvable = "ERROR_CAPTCHA_UNSOLVABLE"
)

// APIConfig configures APISolver.
type APIConfig struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	MaxPolls     int
	HTTPClient   *http.Client
}

// APISolver submits images to a 2captcha-compatible service and polls for the answer.
type APISolver struct {
	apiKey     string
	baseURL    string
	maxPolls   int
	httpClient *http.Client
	limiter    *rate.Limiter
	log        logrus.FieldLogger
}

type apiResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
	Error   string `json:"error_text,omitempty"`
}

// NewAPISolver creates a solver. An empty API key is rejected.
func NewAPISolver(cfg APIConfig, log logrus.FieldLogger) (*APISolver, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("captcha API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAPIBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultMaxPolls
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &APISolver{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxPolls:   cfg.MaxPolls,
		httpClient: cfg.HTTPClient,
		limiter:    rate.NewLimiter(rate.Every(cfg.PollInterval), 1),
		log:        log.WithField("component", "captcha"),
	}, nil
}

// Solve uploads the image and waits for the service to return its text.
func (s *APISolver) Solve(ctx context.Context, png []byte) (string, error) {
	id, err := s.submit(ctx, png)
	if err != nil {
		return "", err
	}
	s.log.WithField("captcha_id", id).Debug("captcha submitted")

	// The first token is spent here so the first poll waits one interval.
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	for poll := 1; poll <= s.maxPolls; poll++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := s.call(ctx, "/res.php", url.Values{
			"key":    {s.apiKey},
			"action": {"get"},
			"id":     {id},
			"json":   {"1"},
		})
		if err != nil {
			return "", err
		}

		switch {
		case resp.Status == 1:
			text := Clean(resp.Request)
			if text == "" {
				return "", ErrEmptyText
			}
			return text, nil
		case resp.Request == notReady:
			continue
		case resp.Request == unsolvable:
			return "", ErrEmptyText
		default:
			return "", &SolverError{Solver: "api", Message: "result error: " + resp.Request}
		}
	}
	return "", &SolverError{Solver: "api", Message: fmt.Sprintf("no answer after %d polls", s.maxPolls)}
}

func (s *APISolver) submit(ctx context.Context, png []byte) (string, error) {
	resp, err := s.call(ctx, "/in.php", url.Values{
		"key":    {s.apiKey},
		"method": {"base64"},
		"body":   {base64.StdEncoding.EncodeToString(png)},
		"json":   {"1"},
	})
	if err != nil {
		return "", err
	}
	if resp.Status != 1 {
		return "", &SolverError{Solver: "api", Message: "submit rejected: " + resp.Request}
	}
	return resp.Request, nil
}

func (s *APISolver) call(ctx context.Context, path string, form url.Values) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &SolverError{Solver: "api", Message: "request failed", Cause: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &SolverError{Solver: "api", Message: "failed to read response", Cause: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &SolverError{Solver: "api", Message: fmt.Sprintf("unexpected status %d", httpResp.StatusCode)}
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &SolverError{Solver: "api", Message: "failed to parse response", Cause: err}
	}
	return &resp, nil
}
