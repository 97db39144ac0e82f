package rotation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/titlepulse/titlepulse-api/internal/domain/campaign"
	"github.com/titlepulse/titlepulse-api/internal/middleware"
)

type campaignReaderStub struct {
	c *campaign.Campaign
}

func (s *campaignReaderStub) GetByID(_ context.Context, userID, id uuid.UUID) (*campaign.Campaign, error) {
	if s.c == nil || s.c.ID != id {
		return nil, campaign.ErrCampaignNotFound
	}
	if s.c.UserID != userID {
		return nil, campaign.ErrNotCampaignOwner
	}
	return s.c, nil
}

func newHistoryRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Identity)
	r.Get("/campaigns/{id}/rotations", h.History)
	return r
}

func getHistory(t *testing.T, router http.Handler, campaignID uuid.UUID, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/campaigns/"+campaignID.String()+"/rotations", nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHistoryReturnsOwnerWindows(t *testing.T) {
	c := activeCampaign(testNow)
	windows := newWindowsStub()
	windows.qualifying[c.ID] = []Rotation{
		window(0, "A", 14400, 75),
		window(1, "B", 14400, 100),
	}

	router := newHistoryRouter(NewHandler(nil, windows, &campaignReaderStub{c: c}))

	rec := getHistory(t, router, c.ID, c.UserID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHistoryRejectsOtherUsersCampaign(t *testing.T) {
	c := activeCampaign(testNow)
	windows := newWindowsStub()
	windows.qualifying[c.ID] = []Rotation{window(0, "A", 14400, 75)}

	router := newHistoryRouter(NewHandler(nil, windows, &campaignReaderStub{c: c}))

	rec := getHistory(t, router, c.ID, uuid.New().String())
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a non-owner, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHistoryUnknownCampaign(t *testing.T) {
	router := newHistoryRouter(NewHandler(nil, newWindowsStub(), &campaignReaderStub{}))

	rec := getHistory(t, router, uuid.New(), uuid.New().String())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown campaign, got %d", rec.Code)
	}
}
