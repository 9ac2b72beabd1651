package entity

import (
	"time"

	"github.com/google/uuid"
)

type UnsubscribeRequest struct {
	TargetURL string
	UserEmail string
}

type Strategy string

const (
	StrategyNone                  Strategy = ""
	StrategyAIComplexForm         Strategy = "AI-assisted complex form"
	StrategyCheckboxRadioSubmit   Strategy = "checkbox + radio + submit"
	StrategyButtonOrLink          Strategy = "button/link"
	StrategyConfirmationDialog    Strategy = "confirmation"
	StrategyDelayedAction         Strategy = "delayed"
	StrategyEmbeddedIframeSuccess Strategy = "embedded iframe"
)

func (s Strategy) String() string {
	if s == StrategyNone {
		return "none"
	}

	return string(s)
}

type AttemptOutcome struct {
	ID           uuid.UUID
	Success      bool
	Strategy     Strategy
	Reason       string
	EvidencePath string
}

// Fixed user-visible failure reasons.
const (
	ReasonNavigationFailed = "Navigation failed"
	ReasonCaptchaFailed    = "CAPTCHA solving failed"
	ReasonUnhandled        = "Unhandled exception during unsubscribe"
	ReasonNoStrategy       = "No unsubscribe action could be performed"
	ReasonNoLink           = "No unsubscribe link found"
	ReasonInvalidURL       = "Invalid unsubscribe URL"
	ReasonCancelled        = "Unsubscribe cancelled"
)

type ChallengeStatus string

const (
	ChallengePending ChallengeStatus = "pending"
	ChallengeReady   ChallengeStatus = "ready"
	ChallengeFailed  ChallengeStatus = "failed"
)

type ChallengeVendor string

const (
	VendorRecaptcha ChallengeVendor = "recaptcha"
	VendorHCaptcha  ChallengeVendor = "hcaptcha"
	VendorGeneric   ChallengeVendor = "captcha"
)

type ChallengeTask struct {
	TaskID        string
	Vendor        ChallengeVendor
	SiteKey       string
	PageURL       string
	Status        ChallengeStatus
	SolutionToken string
}

type PageElementSummary struct {
	Tag      string
	ID       string
	Name     string
	Type     string
	CSSClass string
	Label    string
}

type ActionKind string

const (
	ActionFill  ActionKind = "fill"
	ActionCheck ActionKind = "check"
	ActionClick ActionKind = "click"
)

// ActionSpec is one validated form interaction. Value is only meaningful for
// ActionFill.
type ActionSpec struct {
	Kind     ActionKind
	Selector string
	Value    string
}

func Fill(selector, value string) ActionSpec {
	return ActionSpec{Kind: ActionFill, Selector: selector, Value: value}
}

func Check(selector string) ActionSpec {
	return ActionSpec{Kind: ActionCheck, Selector: selector}
}

func Click(selector string) ActionSpec {
	return ActionSpec{Kind: ActionClick, Selector: selector}
}

type ExecutionReport struct {
	Planned   int
	Performed int
	Skipped   int
	Failed    int
	Filled    int
	Submitted bool
}

func (r ExecutionReport) Acted() bool {
	return r.Performed > 0 || r.Filled > 0 || r.Submitted
}

// EmailTarget is one email of a batch with its stored candidate URL.
type EmailTarget struct {
	ID             string
	UnsubscribeURL string
}

type EmailActionResult struct {
	ID      string
	Success bool
	Reason  string
}

type HistoryRecord struct {
	ID        int64
	EmailID   string
	TargetURL string
	UserEmail string
	Success   bool
	Strategy  string
	Reason    string
	Evidence  string
	CreatedAt time.Time
}
