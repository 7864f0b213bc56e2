package handler

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/sells-group/records-cli/internal/model"
)

// Portal describes how the agent should approach one records platform.
type Portal struct {
	Name       string
	About      []string // what the platform usually looks like
	Navigation []string // ordered steps to reach the form
	Login      bool     // include credentials for account creation
}

// Known platforms. Portal types without a dedicated entry use Generic.
var (
	NextRequest = Portal{
		Name: "NextRequest",
		About: []string{
			"Requests start from a \"Make Request\" or \"New Request\" button.",
			"Submitting usually requires signing in or creating an account.",
		},
		Navigation: []string{
			"Click \"Make Request\" or \"New Request\".",
			"If asked to sign in, enter the email first, then the password when it appears.",
			"If no account exists, choose \"Create Account\" and register.",
		},
		Login: true,
	}

	JustFOIA = Portal{
		Name: "JustFOIA",
		About: []string{
			"The form is usually reachable without login.",
			"It has sections for requester information, request details and delivery.",
			"A recipient dropdown routes the request to a department.",
		},
		Navigation: []string{
			"Open the public records request form.",
			"Pick the recipient in this order: Planning, Zoning, Community Development, City Clerk, Records.",
		},
	}

	GovQA = Portal{
		Name: "GovQA",
		About: []string{
			"The support home page links to a new request form.",
			"Guest submission is sometimes allowed; otherwise an account is needed.",
		},
		Navigation: []string{
			"Look for \"Submit a Request\", \"New Request\" or \"Public Records Request\".",
			"Choose \"Public Records Request\" or \"Open Records\" from the request types.",
			"Prefer a \"Guest\" or \"Continue without signing in\" option over logging in.",
		},
		Login: true,
	}

	CivicPlus = Portal{
		Name: "CivicPlus FormCenter",
		About: []string{
			"Forms are usually embedded directly in the page and need no login.",
			"Some pages only offer a PDF; report PDF_DOWNLOAD if there is no web form.",
			"Generic field names like Field1 should be filled from their labels.",
		},
		Navigation: []string{
			"If this is an info page, look for \"Online Form\", \"Submit Online\" or \"Fill Out Form\".",
			"When both an online form and a PDF exist, use the online form.",
		},
	}

	Generic = Portal{
		Name: "public records",
		About: []string{
			"Remove cookie banners and popups before filling anything.",
		},
		Navigation: []string{
			"Find the public records request form on the page.",
			"If a \"Sign In\" link gates the form, log in or create an account.",
		},
		Login: true,
	}
)

// PortalFor returns the platform description used for ft.
func PortalFor(ft model.FormType) Portal {
	switch ft {
	case model.FormTypeNextRequest:
		return NextRequest
	case model.FormTypeJustFOIA:
		return JustFOIA
	case model.FormTypeGovQA:
		return GovQA
	case model.FormTypeCivicPlus:
		return CivicPlus
	default:
		return Generic
	}
}

// BuildTask renders the agent instructions for entry on portal p.
func BuildTask(p Portal, entry model.FormEntry, req model.Requester, extra map[string]string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Navigate to %s and submit the %s request form for %s, %s.\n",
		entry.URL, p.Name, entry.Municipality, entry.State)
	if entry.Description != "" {
		fmt.Fprintf(&b, "\nContext about this form: %s\n", entry.Description)
	}

	if len(p.About) > 0 {
		b.WriteString("\nAbout this portal:\n")
		for _, line := range p.About {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}

	b.WriteString("\nNavigation:\n")
	for i, step := range p.Navigation {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}

	b.WriteString("\nFill the form with:\n")
	fmt.Fprintf(&b, "- Name: %s\n", req.Name)
	fmt.Fprintf(&b, "- Email: %s\n", req.Email)
	fmt.Fprintf(&b, "- Address: %s\n", req.Address)
	if req.Phone != "" {
		fmt.Fprintf(&b, "- Phone: %s\n", req.Phone)
	} else {
		b.WriteString("- Phone: leave blank if optional\n")
	}
	fmt.Fprintf(&b, "- Request description: %s\n", RequestText(entry.Municipality))
	for _, k := range slices.Sorted(maps.Keys(extra)) {
		fmt.Fprintf(&b, "- %s: %s\n", k, extra[k])
	}

	if p.Login && req.Password != "" {
		b.WriteString("\nIf an account is required, sign in or register with:\n")
		fmt.Fprintf(&b, "- Email: %s\n- Password: %s\n", req.Email, req.Password)
	}

	b.WriteString(`
Field guidance:
- Dates use MM/DD/YYYY. For a date range use 01/01/1940 to 12/31/1945.
- Department: prefer Planning, Zoning, City Clerk or Records.
- Delivery method: Email. Organization: Individual. Purpose: Research.

Submit the form, wait for the confirmation page and report any request or reference number.

Stop and report if:
- a CAPTCHA appears: CAPTCHA_DETECTED
- you cannot log in or create an account: LOGIN_REQUIRED
- there is no request form: FORM_NOT_FOUND
`)
	return b.String()
}
