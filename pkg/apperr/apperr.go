package apperr

import (
	"errors"
	"fmt"
)

const (
	MetaReason   = "reason"
	MetaStage    = "stage"
	MetaField    = "field"
	MetaTaskID   = "task_id"
	MetaSiteKey  = "site_key"
	MetaSelector = "selector"
	MetaURL      = "url"
	MetaStatus   = "status_code"

	StageBrowser    = "browser"
	StageNavigation = "navigation"
	StageChallenge  = "challenge"
	StageSummary    = "summary"
	StagePlanning   = "planning"
	StageExecution  = "execution"
	StageScreenshot = "screenshot"
	StageHistory    = "history"
	StageAI         = "ai"

	CodeInternal            = "internal"
	CodeInvalidArgument     = "invalid_argument"
	CodeUnavailable         = "unavailable"
	CodeTimeout             = "timeout"
	CodeBrowserNotReady     = "browser_not_ready"
	CodeNavigationFailed    = "navigation_failed"
	CodeChallengeUnresolved = "captcha_unresolved"
	CodePlanningUnavailable = "planning_unavailable"
	CodeActionFailed        = "action_failed"
	CodeAIError             = "ai_error"
)

type Error struct {
	Op       string
	Code     string
	Err      error
	Metadata map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Wrap(op, code string, err error, metadata map[string]any) error {
	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &Error{
		Op:       op,
		Code:     code,
		Err:      err,
		Metadata: metadata,
	}
}

func WrapErrorWithReason(op, code, reason string) error {
	return Wrap(op, code, errors.New(reason), map[string]any{
		MetaReason: reason,
	})
}

func InvalidReqError(op, field string, err error) error {
	return Wrap(op, CodeInvalidArgument, err, map[string]any{
		MetaField:  field,
		MetaReason: "invalid_request",
	})
}

// CodeOf returns the code of the outermost *Error in the chain, or "" when
// err carries none.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	return ""
}

// HasCode reports whether any *Error in the chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			return false
		}

		if appErr.Code == code {
			return true
		}

		err = appErr.Err
	}

	return false
}

// Reason returns the MetaReason of the outermost *Error, if any.
func Reason(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		if reason, ok := appErr.Metadata[MetaReason].(string); ok {
			return reason
		}
	}

	return ""
}
