package captcha

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
	"unsubscribe-agent/internal/config"
	"unsubscribe-agent/internal/entity"
	"unsubscribe-agent/pkg/apperr"
	"unsubscribe-agent/pkg/logg"
	"unsubscribe-agent/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	captchaClientName = "CaptchaClient"
	captchaTracer     = "captcha.client"
	requestTimeout    = 30 * time.Second

	TaskTypeRecaptchaV2 = "ReCaptchaV2TaskProxyLess"
	TaskTypeHCaptcha    = "HCaptchaTaskProxyLess"
)

var (
	errNoTaskID   = errors.New("solver returned no task id")
	errMissingKey = errors.New("CAPTCHA_API_KEY is not set")
)

// Client talks to a CapSolver-compatible createTask/getTaskResult API.
type Client struct {
	logger     *zap.Logger
	tracer     trace.Tracer
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
}

type ClientParams struct {
	fx.In

	Config     *config.Config
	Logger     *zap.Logger
	HTTPClient *http.Client `optional:"true"`
}

func NewClient(params ClientParams) *Client {
	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	cfg := params.Config.CaptchaConfig

	return &Client{
		logger:     params.Logger.With(zap.String(logg.Layer, captchaClientName)),
		tracer:     otel.Tracer(captchaTracer),
		httpClient: httpClient,
		limiter:    NewLimiter(cfg.TasksPerMinute),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}
}

// NewLimiter spreads task creation evenly over the account quota. A
// non-positive quota disables limiting.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

type taskPayload struct {
	Type       string `json:"type"`
	WebsiteURL string `json:"websiteURL"`
	WebsiteKey string `json:"websiteKey"`
}

type createTaskRequest struct {
	ClientKey string      `json:"clientKey"`
	Task      taskPayload `json:"task"`
}

type getTaskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    string `json:"taskId"`
}

type apiResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode,omitempty"`
	ErrorDescription string `json:"errorDescription,omitempty"`
	TaskID           string `json:"taskId,omitempty"`
	Status           string `json:"status,omitempty"`
	Solution         struct {
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
		Token              string `json:"token"`
	} `json:"solution"`
}

func TaskType(vendor entity.ChallengeVendor) string {
	if vendor == entity.VendorHCaptcha {
		return TaskTypeHCaptcha
	}

	return TaskTypeRecaptchaV2
}

func (c *Client) CreateTask(ctx context.Context, task entity.ChallengeTask) (taskID string, err error) {
	const op = "CreateTask"
	logger := c.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, task.PageURL))

	ctx, step := tracing.StartSpan(ctx, c.tracer, logger, op,
		attribute.String("vendor", string(task.Vendor)))
	defer func() {
		step.End(err)
	}()

	if c.apiKey == "" {
		return "", apperr.Wrap(op, apperr.CodeChallengeUnresolved, errMissingKey, map[string]any{
			apperr.MetaReason: "missing_api_key",
			apperr.MetaStage:  apperr.StageChallenge,
		})
	}

	step.AddEvent("waiting for quota")

	if err = c.limiter.Wait(ctx); err != nil {
		return "", apperr.Wrap(op, apperr.CodeTimeout, err, map[string]any{
			apperr.MetaReason: "quota_wait_cancelled",
			apperr.MetaStage:  apperr.StageChallenge,
		})
	}

	var resp apiResponse

	err = c.post(ctx, op, "/createTask", createTaskRequest{
		ClientKey: c.apiKey,
		Task: taskPayload{
			Type:       TaskType(task.Vendor),
			WebsiteURL: task.PageURL,
			WebsiteKey: task.SiteKey,
		},
	}, &resp)
	if err != nil {
		return "", err
	}

	if resp.ErrorID != 0 || resp.TaskID == "" {
		cause := errNoTaskID
		if resp.ErrorDescription != "" {
			cause = fmt.Errorf("%w: %s %s", errNoTaskID, resp.ErrorCode, resp.ErrorDescription)
		}

		return "", apperr.Wrap(op, apperr.CodeChallengeUnresolved, cause, map[string]any{
			apperr.MetaReason:  "no_task_id",
			apperr.MetaStage:   apperr.StageChallenge,
			apperr.MetaSiteKey: task.SiteKey,
		})
	}

	logger.Info("CAPTCHA task created", zap.String(logg.TaskID, resp.TaskID))

	return resp.TaskID, nil
}

func (c *Client) GetTaskResult(ctx context.Context, taskID string) (status entity.ChallengeStatus, token string, err error) {
	const op = "GetTaskResult"
	logger := c.logger.With(zap.String(logg.Operation, op), zap.String(logg.TaskID, taskID))

	ctx, step := tracing.StartSpan(ctx, c.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	var resp apiResponse

	err = c.post(ctx, op, "/getTaskResult", getTaskResultRequest{
		ClientKey: c.apiKey,
		TaskID:    taskID,
	}, &resp)
	if err != nil {
		return entity.ChallengeFailed, "", err
	}

	if resp.ErrorID != 0 || resp.Status == "failed" {
		return entity.ChallengeFailed, "", apperr.Wrap(op, apperr.CodeChallengeUnresolved,
			fmt.Errorf("task failed: %s %s", resp.ErrorCode, resp.ErrorDescription), map[string]any{
				apperr.MetaReason: "task_failed",
				apperr.MetaStage:  apperr.StageChallenge,
				apperr.MetaTaskID: taskID,
			})
	}

	if resp.Status != "ready" {
		logger.Debug("CAPTCHA solution pending", zap.String("status", resp.Status))

		return entity.ChallengePending, "", nil
	}

	token = resp.Solution.GRecaptchaResponse
	if token == "" {
		token = resp.Solution.Token
	}

	return entity.ChallengeReady, token, nil
}

func (c *Client) post(ctx context.Context, op, path string, in, out any) error {
	jsonData, err := json.Marshal(in)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "marshal_failed",
			apperr.MetaStage:  apperr.StageChallenge,
		})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "request_create_failed",
			apperr.MetaStage:  apperr.StageChallenge,
		})
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "http_request_failed",
			apperr.MetaStage:  apperr.StageChallenge,
		})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "read_body_failed",
			apperr.MetaStage:  apperr.StageChallenge,
		})
	}

	if resp.StatusCode != http.StatusOK {
		return apperr.Wrap(op, apperr.CodeUnavailable, fmt.Errorf("solver error (status %d): %s", resp.StatusCode, string(body)), map[string]any{
			apperr.MetaReason: "api_error",
			apperr.MetaStage:  apperr.StageChallenge,
			apperr.MetaStatus: resp.StatusCode,
		})
	}

	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "unmarshal_failed",
			apperr.MetaStage:  apperr.StageChallenge,
		})
	}

	return nil
}
