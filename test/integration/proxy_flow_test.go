package integration

import (
	"net/http"
	"testing"
)

func TestProxy_listPassesThroughWithEnvelope(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("listAttivita").RespondWith(http.StatusOK, []any{
		map[string]any{"id": float64(1), "titolo": "Raccolta zona nord"},
		map[string]any{"id": float64(2), "titolo": "Trasporto cisterna"},
	})

	resp := h.GET("/api/attivita/", "")

	var body map[string][]map[string]any
	h.AssertJSON(t, resp, http.StatusOK, &body)
	if len(body["data"]) != 2 {
		t.Fatalf("data = %v", FormatJSON(body))
	}
	h.Backend.AssertCalled(t, "listAttivita", 1)
}

func TestProxy_bearerTokenForwardedVerbatim(t *testing.T) {
	h := NewTestHarness(t)
	token := GenerateToken(t, OperatorClaims())

	resp := h.GET("/api/attivita/", token)
	resp.Body.Close()

	last := h.Backend.LastRequest("listAttivita")
	if last == nil {
		t.Fatal("backend not called")
	}
	if got := last.Headers.Get("Authorization"); got != "Bearer "+token {
		t.Errorf("Authorization = %q", got)
	}
}

func TestProxy_correlationIDPropagated(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GETWithHeaders("/api/attivita/", "", map[string]string{
		"X-Correlation-Id": "corr-789",
	})
	resp.Body.Close()

	if got := resp.Header.Get("X-Correlation-Id"); got != "corr-789" {
		t.Errorf("response X-Correlation-Id = %q", got)
	}
	last := h.Backend.LastRequest("listAttivita")
	if last == nil {
		t.Fatal("backend not called")
	}
	if got := last.Headers.Get("X-Correlation-Id"); got != "corr-789" {
		t.Errorf("backend X-Correlation-Id = %q", got)
	}
}

func TestProxy_backendErrorPassesThrough(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("getAttivita").RespondWith(http.StatusNotFound,
		map[string]any{"detail": "Not found."})

	resp := h.GET("/api/attivita/9", "")

	var body map[string]any
	h.AssertJSON(t, resp, http.StatusNotFound, &body)
	if body["detail"] != "Not found." {
		t.Errorf("body = %v", body)
	}
}

func TestProxy_unreachableBackendSynthesizes500(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("listAttivita").RespondWithConnectionError()

	resp := h.GET("/api/attivita/", "")

	var body map[string]any
	h.AssertJSON(t, resp, http.StatusInternalServerError, &body)
	if body["message"] != "Cannot reach API server" {
		t.Errorf("body = %v", body)
	}
}

func TestProxy_noRetriesOnFailure(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("listAttivita").
		RespondWith(http.StatusServiceUnavailable, map[string]any{"detail": "manutenzione"}).
		RespondWith(http.StatusOK, []any{})

	resp := h.GET("/api/attivita/", "")
	resp.Body.Close()

	// The first answer is a 503; a retry would have found the queued 200.
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	h.Backend.AssertCalled(t, "listAttivita", 1)
}

func TestProxy_localValidationNeverReachesBackend(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.POST("/api/mezzi/", map[string]any{"statoMezzo": "OCCUPATO"}, "")

	var body map[string]any
	h.AssertJSON(t, resp, http.StatusBadRequest, &body)
	if body["error"] != "Validazione fallita" {
		t.Errorf("body = %v", body)
	}
	h.Backend.AssertNotCalled(t, "createMezzo")
}

func TestProxy_enumLeniencyForwardsCorrectedValue(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("createMezzo").RespondWith(http.StatusCreated,
		MezzoFixture(1, "AB123CD", "DISPONIBILE"))

	resp := h.POST("/api/mezzi/", map[string]any{
		"targa":      "ab123cd",
		"statoMezzo": "bogus",
	}, "")
	resp.Body.Close()

	last := h.Backend.LastRequest("createMezzo")
	if last == nil {
		t.Fatal("backend not called")
	}
	if last.Body["targa"] != "AB123CD" {
		t.Errorf("targa = %v", last.Body["targa"])
	}
	if last.Body["statoMezzo"] != "DISPONIBILE" {
		t.Errorf("statoMezzo = %v, want corrected to DISPONIBILE", last.Body["statoMezzo"])
	}
}

func TestProxy_healthAndReady(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/health", "")
	h.AssertStatus(t, resp, http.StatusOK)

	resp = h.GET("/ready", "")
	h.AssertStatus(t, resp, http.StatusOK)
}
