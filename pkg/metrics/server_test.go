package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLandingPageSummarisesIndex(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.IndexTerms.Set(1234)
	m.RegisteredDocuments.Set(56)
	m.ActiveSessions.Set(2)

	rec := httptest.NewRecorder()
	landingPage(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<li>Distinct terms: 1234</li>")
	assert.Contains(t, body, "<li>Documents: 56</li>")
	assert.Contains(t, body, "<li>Active sessions: 2</li>")
	assert.Contains(t, body, `href="/metrics"`)
}

func TestLandingPageWithoutIndexGauges(t *testing.T) {
	rec := httptest.NewRecorder()
	landingPage(prometheus.NewRegistry()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<li>")

	rec = httptest.NewRecorder()
	landingPage(prometheus.NewRegistry()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
