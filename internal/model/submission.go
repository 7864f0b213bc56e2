package model

import (
	"fmt"
	"strings"
	"time"
)

// FormType classifies the portal product behind a form URL.
type FormType string

const (
	FormTypeNextRequest FormType = "NEXTREQUEST"  // *.nextrequest.com
	FormTypeJustFOIA    FormType = "JUSTFOIA"     // *.justfoia.com
	FormTypeGovQA       FormType = "GOVQA"        // *.govqa.us
	FormTypeCivicPlus   FormType = "CIVICPLUS"    // /FormCenter/ paths, civicplus.com
	FormTypePDF         FormType = "PDF"          // .pdf documents
	FormTypeOffice365   FormType = "OFFICE365"    // forms.office.com
	FormTypeCivicWeb    FormType = "CIVICWEB"     // *.civicweb.net
	FormTypeOPRAMachine FormType = "OPRAMACHINE"  // opramachine.com
	FormTypeStatePortal FormType = "STATE_PORTAL" // state-level records portals
	FormTypeGenericWeb  FormType = "GENERIC_WEB"  // fallback
)

// FormTypes lists every form type in declaration order.
var FormTypes = []FormType{
	FormTypeNextRequest,
	FormTypeJustFOIA,
	FormTypeGovQA,
	FormTypeCivicPlus,
	FormTypePDF,
	FormTypeOffice365,
	FormTypeCivicWeb,
	FormTypeOPRAMachine,
	FormTypeStatePortal,
	FormTypeGenericWeb,
}

// ParseFormType resolves a form type name case-insensitively.
func ParseFormType(s string) (FormType, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for _, ft := range FormTypes {
		if string(ft) == want {
			return ft, nil
		}
	}
	return "", fmt.Errorf("unknown form type %q", s)
}

// SubmissionStatus is the outcome of one submission attempt.
type SubmissionStatus string

const (
	StatusPending           SubmissionStatus = "pending"
	StatusInProgress        SubmissionStatus = "in_progress"
	StatusSuccess           SubmissionStatus = "success"
	StatusFailed            SubmissionStatus = "failed"
	StatusCaptchaBlocked    SubmissionStatus = "captcha_blocked"
	StatusLoginRequired     SubmissionStatus = "login_required"
	StatusPDFDownloaded     SubmissionStatus = "pdf_downloaded"
	StatusEmailSent         SubmissionStatus = "email_sent"
	StatusSkipped           SubmissionStatus = "skipped"
	StatusNeedsVerification SubmissionStatus = "needs_verification"
)

// ProcessedStatuses are the statuses that satisfy an entry. Entries stored
// with one of these are skipped when a batch resumes.
var ProcessedStatuses = []SubmissionStatus{
	StatusSuccess,
	StatusEmailSent,
	StatusSkipped,
}

// CountsAsSuccess reports whether the status is tallied as a success in run
// summaries. A downloaded PDF still needs a human to send it, but the
// automated part of the work is done.
func (s SubmissionStatus) CountsAsSuccess() bool {
	return s == StatusSuccess || s == StatusPDFDownloaded
}

// FailureReason gives detail for unsuccessful submissions.
type FailureReason string

const (
	FailureNone            FailureReason = "none"
	FailureCaptcha         FailureReason = "captcha"
	FailureLoginRequired   FailureReason = "login_required"
	FailureTimeout         FailureReason = "timeout"
	FailureNetworkError    FailureReason = "network_error"
	FailureFormNotFound    FailureReason = "form_not_found"
	FailureSubmissionError FailureReason = "submission_error"
	FailurePDFFillError    FailureReason = "pdf_fill_error"
	FailureEmailSendError  FailureReason = "email_send_error"
	FailureUnknown         FailureReason = "unknown"
)

// Confidence is how much textual evidence backed an agent-derived outcome.
type Confidence string

const (
	ConfidenceHigh    Confidence = "high"
	ConfidenceMedium  Confidence = "medium"
	ConfidenceLow     Confidence = "low"
	ConfidenceUnknown Confidence = "unknown"
)

// MaxAgentOutput bounds the raw agent transcript kept on a result.
const MaxAgentOutput = 5000

// FormEntry is one row of the input file.
type FormEntry struct {
	CensusID     string   `json:"census_id"`
	Municipality string   `json:"municipality"`
	State        string   `json:"state"`
	Rank         int      `json:"rank"`
	URL          string   `json:"url"`
	Description  string   `json:"description,omitempty"`
	FormType     FormType `json:"form_type,omitempty"`
}

// UniqueID is the natural key of an entry: census id and rank.
func (e FormEntry) UniqueID() string {
	return fmt.Sprintf("%s_%d", e.CensusID, e.Rank)
}

// DisplayName is a human-readable label for logs.
func (e FormEntry) DisplayName() string {
	return fmt.Sprintf("%s, %s (Rank %d)", e.Municipality, e.State, e.Rank)
}

// SubmissionResult records what happened when one entry was processed.
type SubmissionResult struct {
	FormEntryID  string `json:"form_entry_id"`
	CensusID     string `json:"census_id"`
	Municipality string `json:"municipality"`
	State        string `json:"state"`
	URL          string `json:"url"`

	Status        SubmissionStatus `json:"status"`
	FailureReason FailureReason    `json:"failure_reason"`
	Confidence    Confidence       `json:"confidence"`

	StartedAt   time.Time `json:"started_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`

	ConfirmationNumber  string `json:"confirmation_number,omitempty"`
	ConfirmationMessage string `json:"confirmation_message,omitempty"`
	PDFDownloadedPath   string `json:"pdf_downloaded_path,omitempty"`
	PDFFilledPath       string `json:"pdf_filled_path,omitempty"`
	ErrorMessage        string `json:"error_message,omitempty"`
	AgentOutput         string `json:"agent_output,omitempty"`

	RetryCount int    `json:"retry_count"`
	FormType   string `json:"form_type,omitempty"`

	// Set by the store on read.
	BatchID   string    `json:"batch_id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// TruncateOutput cuts s to at most MaxAgentOutput runes.
func TruncateOutput(s string) string {
	r := []rune(s)
	if len(r) <= MaxAgentOutput {
		return s
	}
	return string(r[:MaxAgentOutput])
}

// Statistics aggregates stored results.
type Statistics struct {
	Total           int                      `json:"total" yaml:"total"`
	ByStatus        map[SubmissionStatus]int `json:"by_status" yaml:"by_status"`
	ByFailureReason map[FailureReason]int    `json:"by_failure_reason" yaml:"by_failure_reason"`
}

// NewStatistics returns an empty Statistics with initialized maps.
func NewStatistics() *Statistics {
	return &Statistics{
		ByStatus:        make(map[SubmissionStatus]int),
		ByFailureReason: make(map[FailureReason]int),
	}
}
