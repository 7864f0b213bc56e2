// Package classify maps form URLs to portal types.
package classify

import (
	"regexp"
	"strings"

	"github.com/sells-group/records-cli/internal/model"
)

// Confidence scores returned by WithConfidence.
const (
	URLMatchConfidence  = 0.95
	HintMatchConfidence = 0.7
	DefaultConfidence   = 0.5
)

type urlRule struct {
	pattern  *regexp.Regexp
	formType model.FormType
}

// urlRules is evaluated in order against the lower-cased URL; the first match
// wins. Vendor domains come before path markers, and the .pdf extension check
// is last so a vendor-hosted PDF still routes to its vendor.
var urlRules = []urlRule{
	{regexp.MustCompile(`\.nextrequest\.com`), model.FormTypeNextRequest},
	{regexp.MustCompile(`\.justfoia\.com`), model.FormTypeJustFOIA},
	{regexp.MustCompile(`\.govqa\.us`), model.FormTypeGovQA},
	{regexp.MustCompile(`forms\.office\.com`), model.FormTypeOffice365},
	{regexp.MustCompile(`\.civicweb\.net`), model.FormTypeCivicWeb},
	{regexp.MustCompile(`opramachine\.com`), model.FormTypeOPRAMachine},
	{regexp.MustCompile(`openrecords\.pa\.gov`), model.FormTypeStatePortal},
	{regexp.MustCompile(`texasattorneygeneral\.gov`), model.FormTypeStatePortal},
	{regexp.MustCompile(`/formcenter/`), model.FormTypeCivicPlus},
	{regexp.MustCompile(`\.civicplus\.com`), model.FormTypeCivicPlus},
	{regexp.MustCompile(`/forms\.aspx`), model.FormTypeCivicPlus},
	{regexp.MustCompile(`\.pdf(\?|$|#)`), model.FormTypePDF},
}

type descriptionHint struct {
	keyword  string
	formType model.FormType
}

// descriptionHints is ordered; the first keyword found wins.
var descriptionHints = []descriptionHint{
	{"pdf", model.FormTypePDF},
	{"fillable", model.FormTypePDF},
	{"download", model.FormTypePDF},
	{"nextrequest", model.FormTypeNextRequest},
	{"justfoia", model.FormTypeJustFOIA},
	{"govqa", model.FormTypeGovQA},
	{"civicplus", model.FormTypeCivicPlus},
	{"formcenter", model.FormTypeCivicPlus},
}

// URL returns the form type for rawURL. It never fails: URLs matching no rule
// are GENERIC_WEB.
func URL(rawURL string) model.FormType {
	lower := strings.ToLower(rawURL)
	for _, r := range urlRules {
		if r.pattern.MatchString(lower) {
			return r.formType
		}
	}
	return model.FormTypeGenericWeb
}

// WithConfidence classifies rawURL and falls back to keyword hints in the
// free-text description when the URL alone is inconclusive. The result is
// advisory; routing uses URL.
func WithConfidence(rawURL, description string) (model.FormType, float64) {
	ft := URL(rawURL)
	if ft != model.FormTypeGenericWeb {
		return ft, URLMatchConfidence
	}

	lower := strings.ToLower(description)
	for _, h := range descriptionHints {
		if strings.Contains(lower, h.keyword) {
			return h.formType, HintMatchConfidence
		}
	}
	return model.FormTypeGenericWeb, DefaultConfidence
}
