package handler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/records-cli/internal/model"
)

type stubHandler struct{ name string }

func (s stubHandler) Name() string { return s.name }

func (s stubHandler) Submit(_ context.Context, e model.FormEntry, _ map[string]string) model.SubmissionResult {
	return NewResult(e, model.StatusSuccess, time.Time{})
}

func testEntry(ft model.FormType) model.FormEntry {
	return model.FormEntry{
		CensusID:     "174540",
		Municipality: "Los Gatos",
		State:        "CA",
		Rank:         1,
		URL:          "https://losgatosca.nextrequest.com/requests/new",
		FormType:     ft,
	}
}

func TestRegistry_FirstRegistrationWins(t *testing.T) {
	r := NewRegistry()
	r.Register(stubHandler{"first"}, model.FormTypeNextRequest, model.FormTypeGenericWeb)
	r.Register(stubHandler{"second"}, model.FormTypeNextRequest, model.FormTypeGovQA)

	assert.Equal(t, "first", r.For(model.FormTypeNextRequest).Name())
	assert.Equal(t, "second", r.For(model.FormTypeGovQA).Name())
	assert.Equal(t, []model.FormType{
		model.FormTypeNextRequest, model.FormTypeGenericWeb, model.FormTypeGovQA,
	}, r.Types())
}

func TestRegistry_FallsBackToGeneric(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.For(model.FormTypeCivicWeb))

	r.Register(stubHandler{"generic"}, model.FormTypeGenericWeb)
	require.NotNil(t, r.For(model.FormTypeCivicWeb))
	assert.Equal(t, "generic", r.For(model.FormTypeCivicWeb).Name())
}

func TestRequestText(t *testing.T) {
	got := RequestText("Los Gatos")
	assert.True(t, strings.HasPrefix(got, "Could you please send me Los Gatos's municipal zoning code as of 1940?"))
	assert.Contains(t, got, "first post 1940 adoption")
}

func TestNewResult(t *testing.T) {
	started := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r := NewResult(testEntry(model.FormTypeNextRequest), model.StatusPending, started)

	assert.Equal(t, "174540_1", r.FormEntryID)
	assert.Equal(t, "NEXTREQUEST", r.FormType)
	assert.Equal(t, model.FailureNone, r.FailureReason)
	assert.Equal(t, model.ConfidenceUnknown, r.Confidence)
	assert.Equal(t, started, r.StartedAt)
}

func TestBatchIDContext(t *testing.T) {
	assert.Empty(t, BatchIDFrom(context.Background()))
	assert.Equal(t, "a1b2c3d4", BatchIDFrom(WithBatchID(context.Background(), "a1b2c3d4")))
}

func TestBuildTask(t *testing.T) {
	e := testEntry(model.FormTypeNextRequest)
	e.Description = "Records portal run by the clerk"
	req := model.Requester{Name: "John Doe", Email: "test@example.com", Address: "123 Main St", Password: "pw"}

	got := BuildTask(PortalFor(e.FormType), e, req, map[string]string{"Zip": "95030", "County": "Santa Clara"})

	assert.Contains(t, got, "Navigate to https://losgatosca.nextrequest.com/requests/new")
	assert.Contains(t, got, "NextRequest request form for Los Gatos, CA")
	assert.Contains(t, got, "Records portal run by the clerk")
	assert.Contains(t, got, "- Phone: leave blank if optional")
	assert.Contains(t, got, "- Password: pw")
	assert.Contains(t, got, "CAPTCHA_DETECTED")
	assert.Less(t, strings.Index(got, "County"), strings.Index(got, "Zip"), "extra fields are sorted")
}

func TestBuildTask_NoCredentialsForGuestPortals(t *testing.T) {
	req := model.Requester{Name: "John Doe", Email: "test@example.com", Password: "pw"}
	got := BuildTask(PortalFor(model.FormTypeJustFOIA), testEntry(model.FormTypeJustFOIA), req, nil)
	assert.NotContains(t, got, "Password")
}

func TestPortalFor(t *testing.T) {
	assert.Equal(t, GovQA.Name, PortalFor(model.FormTypeGovQA).Name)
	assert.Equal(t, CivicPlus.Name, PortalFor(model.FormTypeCivicPlus).Name)
	for _, ft := range []model.FormType{
		model.FormTypeGenericWeb, model.FormTypeStatePortal, model.FormTypeOPRAMachine,
		model.FormTypeCivicWeb, model.FormTypeOffice365,
	} {
		assert.Equal(t, Generic.Name, PortalFor(ft).Name, ft)
	}
}
