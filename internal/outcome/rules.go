package outcome

import (
	_ "embed"
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/records-cli/internal/model"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rules holds the phrase and pattern tables driving interpretation.
type Rules struct {
	SuffixWindow         int            `yaml:"suffix_window"`
	FailedTaskStatuses   []string       `yaml:"failed_task_statuses"`
	FailurePhrases       []string       `yaml:"failure_phrases"`
	FailureClasses       []FailureClass `yaml:"failure_classes"`
	PDFOnlyPhrases       []string       `yaml:"pdf_only_phrases"`
	SubmitPhrases        []string       `yaml:"submit_phrases"`
	SubmitPatterns       []string       `yaml:"submit_patterns"`
	NavigationPhrases    []string       `yaml:"navigation_phrases"`
	CompletionPhrases    []string       `yaml:"completion_phrases"`
	ConfirmationPatterns []string       `yaml:"confirmation_patterns"`
}

// FailureClass refines a matched failure phrase into a status and reason.
type FailureClass struct {
	Contains string                 `yaml:"contains"`
	Status   model.SubmissionStatus `yaml:"status"`
	Reason   model.FailureReason    `yaml:"reason"`
}

// DefaultRules parses the embedded rule tables.
func DefaultRules() (*Rules, error) {
	return parseRules(defaultRulesYAML)
}

// LoadRules reads rule tables from a YAML file. An empty path returns the
// embedded defaults.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "outcome: read rules %s", path)
	}
	return parseRules(data)
}

func parseRules(data []byte) (*Rules, error) {
	var wrapper struct {
		Evidence Rules `yaml:"evidence"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "outcome: parse rules")
	}
	r := &wrapper.Evidence
	if len(r.FailedTaskStatuses) == 0 {
		r.FailedTaskStatuses = []string{"failed", "error"}
	}
	if r.SuffixWindow < 0 {
		return nil, eris.Errorf("outcome: suffix_window must be >= 0, got %d", r.SuffixWindow)
	}
	return r, nil
}

// compiled is the matcher form of Rules.
type compiled struct {
	submitPatterns       []*regexp.Regexp
	confirmationPatterns []*regexp.Regexp
}

func compileRules(r *Rules) (*compiled, error) {
	c := &compiled{}
	for _, p := range r.SubmitPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, eris.Wrapf(err, "outcome: compile submit pattern %q", p)
		}
		c.submitPatterns = append(c.submitPatterns, re)
	}
	for _, p := range r.ConfirmationPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, eris.Wrapf(err, "outcome: compile confirmation pattern %q", p)
		}
		if re.NumSubexp() < 1 {
			return nil, eris.Errorf("outcome: confirmation pattern %q has no capture group", p)
		}
		c.confirmationPatterns = append(c.confirmationPatterns, re)
	}
	return c, nil
}
