package integration

import (
	"net/http"
	"testing"
)

func TestCompositeCreation_createsVehicleTrailerAndLink(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("lookupMezzoByTarga").RespondWith(http.StatusNotFound,
		map[string]any{"detail": "Not found."})
	h.Backend.OnOperation("createMezzo").RespondWith(http.StatusCreated,
		MezzoFixture(10, "AB123CD", "DISPONIBILE"))
	h.Backend.OnOperation("createRimorchio").RespondWith(http.StatusCreated,
		RimorchioFixture(20, "Cassone ribaltabile", "CENTINATO"))
	h.Backend.OnOperation("createAssociazione").RespondWith(http.StatusCreated,
		map[string]any{"id": float64(30), "mezzo_id": float64(10), "rimorchio_id": float64(20), "attivo": true})

	resp := h.POST("/api/mezzo/crea", map[string]any{
		"targa":         "ab123cd",
		"nomeRimorchio": "Cassone ribaltabile",
		"tipoRimorchio": "CENTINATO",
	}, "")

	var body map[string]map[string]any
	h.AssertJSON(t, resp, http.StatusCreated, &body)
	if body["mezzo"]["id"] != float64(10) {
		t.Errorf("mezzo = %v", FormatJSON(body["mezzo"]))
	}
	if body["rimorchio"]["id"] != float64(20) {
		t.Errorf("rimorchio = %v", FormatJSON(body["rimorchio"]))
	}
	if body["associazione"]["attivo"] != true {
		t.Errorf("associazione = %v", FormatJSON(body["associazione"]))
	}

	link := h.Backend.LastRequest("createAssociazione")
	if link.Body["mezzo_id"] != float64(10) || link.Body["rimorchio_id"] != float64(20) {
		t.Errorf("link body = %v", FormatJSON(link.Body))
	}
}

func TestCompositeCreation_reusesExistingEntities(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("lookupMezzoByTarga").RespondWith(http.StatusOK,
		MezzoFixture(99, "ZZ999ZZ", "DISPONIBILE"))
	h.Backend.OnOperation("getRimorchio").RespondWith(http.StatusOK,
		RimorchioFixture(42, "Pianale", "ALTRO"))
	h.Backend.OnOperation("createAssociazione").RespondWith(http.StatusCreated,
		map[string]any{"id": float64(7), "mezzo_id": float64(99), "rimorchio_id": float64(42), "attivo": true})

	resp := h.POST("/api/mezzo/crea", map[string]any{
		"targa":       "zz999zz",
		"rimorchioId": 42,
	}, "")

	// Nothing was created by this run, so the composite answers 200.
	var body map[string]map[string]any
	h.AssertJSON(t, resp, http.StatusOK, &body)
	if body["mezzo"]["id"] != float64(99) {
		t.Errorf("mezzo = %v", FormatJSON(body["mezzo"]))
	}

	h.Backend.AssertNotCalled(t, "createMezzo")
	h.Backend.AssertNotCalled(t, "createRimorchio")
}

func TestCompositeCreation_linkFailureRollsBackInReverseOrder(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("lookupMezzoByTarga").RespondWith(http.StatusNotFound,
		map[string]any{"detail": "Not found."})
	h.Backend.OnOperation("createMezzo").RespondWith(http.StatusCreated,
		MezzoFixture(10, "AB123CD", "DISPONIBILE"))
	h.Backend.OnOperation("createRimorchio").RespondWith(http.StatusCreated,
		RimorchioFixture(20, "Cassone", "ALTRO"))
	h.Backend.OnOperation("createAssociazione").RespondWith(http.StatusConflict,
		map[string]any{"error": "Associazione già attiva per questo mezzo"})

	resp := h.POST("/api/mezzo/crea", map[string]any{
		"targa":         "ab123cd",
		"nomeRimorchio": "Cassone",
	}, "")

	var body map[string]any
	h.AssertJSON(t, resp, http.StatusConflict, &body)
	if body["error"] != "Associazione già attiva per questo mezzo" {
		t.Errorf("body = %v", body)
	}

	h.Backend.AssertCalled(t, "deleteRimorchio", 1)
	h.Backend.AssertCalled(t, "deleteMezzo", 1)

	trailerDel := h.Backend.LastRequest("deleteRimorchio")
	vehicleDel := h.Backend.LastRequest("deleteMezzo")
	if trailerDel.Path != "/api/rimorchi/20/" {
		t.Errorf("trailer delete path = %q", trailerDel.Path)
	}
	if vehicleDel.Path != "/api/mezzi/10/" {
		t.Errorf("vehicle delete path = %q", vehicleDel.Path)
	}
	if vehicleDel.ReceivedAt.Before(trailerDel.ReceivedAt) {
		t.Error("vehicle rolled back before trailer, want reverse creation order")
	}
}

func TestCompositeCreation_unknownTrailerRollsBackVehicle(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("lookupMezzoByTarga").RespondWith(http.StatusNotFound,
		map[string]any{"detail": "Not found."})
	h.Backend.OnOperation("createMezzo").RespondWith(http.StatusCreated,
		MezzoFixture(10, "AB123CD", "DISPONIBILE"))
	h.Backend.OnOperation("getRimorchio").RespondWith(http.StatusNotFound,
		map[string]any{"detail": "Not found."})

	resp := h.POST("/api/mezzo/crea", map[string]any{
		"targa":       "ab123cd",
		"rimorchioId": 404,
	}, "")

	var body map[string]any
	h.AssertJSON(t, resp, http.StatusNotFound, &body)
	if body["error"] != "Rimorchio non trovato per id fornito" {
		t.Errorf("body = %v", body)
	}

	h.Backend.AssertCalled(t, "deleteMezzo", 1)
	h.Backend.AssertNotCalled(t, "createAssociazione")
}

func TestCompositeCreation_existingVehicleIsNeverDeleted(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("lookupMezzoByTarga").RespondWith(http.StatusOK,
		MezzoFixture(99, "ZZ999ZZ", "DISPONIBILE"))
	h.Backend.OnOperation("getRimorchio").RespondWith(http.StatusNotFound,
		map[string]any{"detail": "Not found."})

	resp := h.POST("/api/mezzo/crea", map[string]any{
		"targa":       "zz999zz",
		"rimorchioId": 404,
	}, "")
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	h.Backend.AssertNotCalled(t, "deleteMezzo")
}

func TestCompositeCreation_vehicleOnlyRun(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("lookupMezzoByTarga").RespondWith(http.StatusNotFound,
		map[string]any{"detail": "Not found."})
	h.Backend.OnOperation("createMezzo").RespondWith(http.StatusCreated,
		MezzoFixture(10, "AB123CD", "DISPONIBILE"))

	resp := h.POST("/api/mezzo/crea", map[string]any{"targa": "ab123cd"}, "")

	var body map[string]any
	h.AssertJSON(t, resp, http.StatusCreated, &body)
	mezzo, _ := body["mezzo"].(map[string]any)
	if mezzo["id"] != float64(10) {
		t.Errorf("mezzo = %v", FormatJSON(body["mezzo"]))
	}
	if body["rimorchio"] != nil || body["associazione"] != nil {
		t.Errorf("body = %v, want null trailer and link", FormatJSON(body))
	}
	h.Backend.AssertNotCalled(t, "createRimorchio")
	h.Backend.AssertNotCalled(t, "createAssociazione")
}

func TestCompositeCreation_rejectsEmptyPayload(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.POST("/api/mezzo/crea", map[string]any{}, "")

	var body map[string]any
	h.AssertJSON(t, resp, http.StatusBadRequest, &body)
	if body["error"] != "Validazione fallita" {
		t.Errorf("body = %v", body)
	}
	h.Backend.AssertNotCalled(t, "lookupMezzoByTarga")
	h.Backend.AssertNotCalled(t, "createMezzo")
	h.Backend.AssertNotCalled(t, "createRimorchio")
}
