// Package outcome turns free-text agent transcripts into submission outcomes.
package outcome

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sells-group/records-cli/internal/model"
)

// Confirmation messages attached to agent-derived outcomes.
const (
	MsgSubmittedHigh      = "Form submitted - agent clicked submit and navigated to confirmation"
	MsgSubmittedClicked   = "Form likely submitted - agent clicked submit"
	MsgSubmittedNavigated = "Form likely submitted - agent navigated to confirmation"
	MsgCompletedOnly      = "Task completed but no submit action detected - verify manually"
	MsgUnclear            = "Task finished but unclear if form was submitted - verify manually"
)

// Task is the terminal state of a remote agent task.
type Task struct {
	Status string
	Output string
	Error  string
}

// Outcome is the structured reading of a Task.
type Outcome struct {
	Status              model.SubmissionStatus
	FailureReason       model.FailureReason
	Confidence          model.Confidence
	ConfirmationNumber  string
	ConfirmationMessage string
	ErrorMessage        string
}

// Apply copies the outcome onto r.
func (o Outcome) Apply(r *model.SubmissionResult) {
	r.Status = o.Status
	r.FailureReason = o.FailureReason
	r.Confidence = o.Confidence
	r.ConfirmationNumber = o.ConfirmationNumber
	r.ConfirmationMessage = o.ConfirmationMessage
	r.ErrorMessage = o.ErrorMessage
}

// Interpreter applies an ordered evidence cascade to agent output. It is
// safe for concurrent use.
type Interpreter struct {
	rules *Rules
	re    *compiled
}

// NewInterpreter validates and compiles r.
func NewInterpreter(r *Rules) (*Interpreter, error) {
	re, err := compileRules(r)
	if err != nil {
		return nil, err
	}
	lowered := *r
	lowered.FailedTaskStatuses = lowerAll(r.FailedTaskStatuses)
	lowered.FailurePhrases = lowerAll(r.FailurePhrases)
	lowered.PDFOnlyPhrases = lowerAll(r.PDFOnlyPhrases)
	lowered.SubmitPhrases = lowerAll(r.SubmitPhrases)
	lowered.NavigationPhrases = lowerAll(r.NavigationPhrases)
	lowered.CompletionPhrases = lowerAll(r.CompletionPhrases)
	lowered.FailureClasses = make([]FailureClass, len(r.FailureClasses))
	for i, fc := range r.FailureClasses {
		fc.Contains = strings.ToLower(fc.Contains)
		lowered.FailureClasses[i] = fc
	}
	return &Interpreter{rules: &lowered, re: re}, nil
}

// DefaultInterpreter builds an interpreter from the embedded rules. It panics
// if the embedded tables are invalid.
func DefaultInterpreter() *Interpreter {
	r, err := DefaultRules()
	if err != nil {
		panic(err)
	}
	in, err := NewInterpreter(r)
	if err != nil {
		panic(err)
	}
	return in
}

// Interpret classifies a finished task. It never fails: text with no usable
// evidence yields needs_verification with unknown confidence.
func (in *Interpreter) Interpret(task Task) Outcome {
	out := in.decide(task)
	out.ConfirmationNumber = in.ExtractConfirmation(task.Output)
	return out
}

func (in *Interpreter) decide(task Task) Outcome {
	if slices.Contains(in.rules.FailedTaskStatuses, strings.ToLower(strings.TrimSpace(task.Status))) {
		msg := task.Error
		if msg == "" {
			msg = "Task failed"
		}
		return Outcome{
			Status:        model.StatusFailed,
			FailureReason: model.FailureUnknown,
			Confidence:    model.ConfidenceHigh,
			ErrorMessage:  msg,
		}
	}

	text := in.window(strings.ToLower(task.Output))

	if phrase, ok := firstContained(text, in.rules.FailurePhrases); ok {
		status, reason := in.classifyFailure(phrase)
		return Outcome{
			Status:        status,
			FailureReason: reason,
			Confidence:    model.ConfidenceHigh,
			ErrorMessage:  fmt.Sprintf("Detected: %s", phrase),
		}
	}

	if _, ok := firstContained(text, in.rules.PDFOnlyPhrases); ok {
		return Outcome{
			Status:        model.StatusPDFDownloaded,
			FailureReason: model.FailureNone,
			Confidence:    model.ConfidenceHigh,
		}
	}

	submitted := in.hasSubmitAction(text)
	_, navigated := firstContained(text, in.rules.NavigationPhrases)

	switch {
	case submitted && navigated:
		return success(model.ConfidenceHigh, MsgSubmittedHigh)
	case submitted:
		return success(model.ConfidenceMedium, MsgSubmittedClicked)
	case navigated:
		return success(model.ConfidenceMedium, MsgSubmittedNavigated)
	}

	if _, ok := firstContained(text, in.rules.CompletionPhrases); ok {
		return Outcome{
			Status:              model.StatusNeedsVerification,
			FailureReason:       model.FailureNone,
			Confidence:          model.ConfidenceLow,
			ConfirmationMessage: MsgCompletedOnly,
		}
	}

	return Outcome{
		Status:              model.StatusNeedsVerification,
		FailureReason:       model.FailureNone,
		Confidence:          model.ConfidenceUnknown,
		ConfirmationMessage: MsgUnclear,
	}
}

// ExtractConfirmation returns the token captured by the first confirmation
// pattern that matches anywhere in output, or "".
func (in *Interpreter) ExtractConfirmation(output string) string {
	for _, re := range in.re.confirmationPatterns {
		if m := re.FindStringSubmatch(output); m != nil {
			return m[1]
		}
	}
	return ""
}

func (in *Interpreter) classifyFailure(phrase string) (model.SubmissionStatus, model.FailureReason) {
	for _, fc := range in.rules.FailureClasses {
		if strings.Contains(phrase, fc.Contains) {
			return fc.Status, fc.Reason
		}
	}
	return model.StatusFailed, model.FailureUnknown
}

func (in *Interpreter) hasSubmitAction(text string) bool {
	if _, ok := firstContained(text, in.rules.SubmitPhrases); ok {
		return true
	}
	for _, re := range in.re.submitPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// window keeps the last SuffixWindow runes of text when a window is set.
func (in *Interpreter) window(text string) string {
	n := in.rules.SuffixWindow
	if n <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[len(r)-n:])
}

func success(conf model.Confidence, msg string) Outcome {
	return Outcome{
		Status:              model.StatusSuccess,
		FailureReason:       model.FailureNone,
		Confidence:          conf,
		ConfirmationMessage: msg,
	}
}

func firstContained(text string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if p != "" && strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
