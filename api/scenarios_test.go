/*
scenarios_test.go - Tests for the demo scenario loaders

Every scenario must load on an empty and on a populated database, and
leave the data each description promises.
*/
package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (ts *testServer) loadScenario(t *testing.T, id string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": id}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]string{"status": "loaded", "scenario": id}, decodeAs[map[string]string](t, rec))
}

func TestScenarios_List(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/scenarios", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeAs[[]ScenarioDTO](t, rec)
	require.Len(t, list, 4)
	for _, s := range list {
		assert.NotEmpty(t, s.ID)
		assert.NotEmpty(t, s.Name)
	}
}

func TestScenarios_AllLoad(t *testing.T) {
	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			ts := newTestServer(t)
			ts.loadScenario(t, s.ID)

			// loading again starts from a clean database
			ts.loadScenario(t, s.ID)

			current := decodeAs[ScenarioDTO](t, ts.do(t, http.MethodGet, "/api/scenarios/current", nil, ""))
			assert.Equal(t, s.ID, current.ID)
		})
	}
}

func TestScenarios_FirstSales(t *testing.T) {
	ts := newTestServer(t)
	ts.loadScenario(t, "first-sales")

	page := decodeAs[PageDTO[EarningDTO]](t, ts.do(t, http.MethodGet, "/api/trainers/tr-alex/earnings/history", nil, ""))
	assert.Equal(t, 3, page.Total)

	// whey promotion applied on the first order
	rec := ts.do(t, http.MethodGet, "/api/earnings/o-1001", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	e := decodeAs[EarningDTO](t, rec)
	require.Len(t, e.Lines, 3)
	assert.Equal(t, "promo-whey", e.Lines[0].PromotionID)
	assert.Equal(t, "7.49", e.Lines[0].Earnings)

	// the ebook needs no handoff: whey, rack and two whey tubs do
	ds := decodeAs[[]DeliveryDTO](t, ts.do(t, http.MethodGet, "/api/trainers/tr-alex/deliveries", nil, ""))
	assert.Len(t, ds, 3)
}

func TestScenarios_DeliveryDispute(t *testing.T) {
	ts := newTestServer(t)
	ts.loadScenario(t, "delivery-dispute")

	disputed := decodeAs[[]DeliveryDTO](t, ts.do(t, http.MethodGet, "/api/deliveries/disputed", nil, ""))
	require.Len(t, disputed, 1)
	assert.Equal(t, "prod-whey", disputed[0].ProductID)

	pending := decodeAs[[]DeliveryDTO](t, ts.do(t, http.MethodGet, "/api/trainers/tr-alex/deliveries/reschedules", nil, ""))
	require.Len(t, pending, 1)
	assert.Equal(t, "prod-rack", pending[0].ProductID)

	confirmed := decodeAs[[]DeliveryDTO](t, ts.do(t, http.MethodGet, "/api/clients/c-sam/deliveries?status=confirmed", nil, ""))
	require.Len(t, confirmed, 1)
	assert.Equal(t, "prod-bands", confirmed[0].ProductID)
}

func TestScenarios_AdPartnerships(t *testing.T) {
	ts := newTestServer(t)
	ts.loadScenario(t, "ad-partnerships")

	pending := decodeAs[[]PartnershipDTO](t, ts.do(t, http.MethodGet, "/api/partnerships/pending", nil, ""))
	require.Len(t, pending, 1)
	assert.Equal(t, "silver", pending[0].PackageTier)

	all := decodeAs[[]PartnershipDTO](t, ts.do(t, http.MethodGet, "/api/trainers/tr-alex/partnerships", nil, ""))
	assert.Len(t, all, 2)
}

func TestScenarios_TopSeller(t *testing.T) {
	ts := newTestServer(t)
	ts.loadScenario(t, "top-seller")

	summary := decodeAs[AwardsSummaryDTO](t, ts.do(t, http.MethodGet, "/api/admin/awards/summary", nil, ""))
	require.NotNil(t, summary.LastRun)
	assert.Equal(t, "completed", summary.LastRun.Status)
	assert.Equal(t, 1, summary.ByType["top_seller"])

	var topSeller string
	for _, a := range summary.Awards {
		if a.Type == "top_seller" {
			topSeller = a.TrainerID
		}
	}
	assert.Equal(t, "tr-alex", topSeller)
}

func TestScenarios_UnknownAndReset(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.loadScenario(t, "first-sales")
	rec = ts.do(t, http.MethodPost, "/api/scenarios/reset", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	page := decodeAs[PageDTO[EarningDTO]](t, ts.do(t, http.MethodGet, "/api/trainers/tr-alex/earnings/history", nil, ""))
	assert.Equal(t, 0, page.Total)

	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", nil, "")
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}
