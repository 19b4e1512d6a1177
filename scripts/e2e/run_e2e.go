// Package main runs end-to-end scenarios against a running DentiFlow API
// seeded with the demo clinic (SEED_DEMO_DATA=true, ENV=development):
//   - Health and clinic landing page
//   - Booking, listing, status changes and cancellation
//   - Double-booking rejection and back-to-back slots
//   - Rescheduling into a taken slot
//   - Chat receptionist replies (configured or fallback)
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go [scenario-name]
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const demoSlug = "sonrisa-perfecta"

var (
	apiBase string
	client  = &http.Client{Timeout: 45 * time.Second}
	// Far enough ahead that reruns on the same day do not collide.
	baseSlot = time.Now().UTC().Truncate(time.Hour).Add(30 * 24 * time.Hour).Add(time.Duration(time.Now().Minute()%7) * 24 * time.Hour)
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func call(method, path string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, apiBase+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, nil
}

type profile struct {
	ID       string `json:"id"`
	Name     string `json:"nombre"`
	Dentists []struct {
		ID        string `json:"id"`
		FirstName string `json:"nombre"`
	} `json:"dentistas"`
}

type appointment struct {
	ID          string    `json:"id"`
	StartsAt    time.Time `json:"fechaHora"`
	Status      string    `json:"estado"`
	DentistName string    `json:"nombreDentista"`
	PatientName string    `json:"nombrePaciente"`
}

func loadProfile(t *T) *profile {
	status, raw, err := call(http.MethodGet, "/clinica/"+demoSlug, nil)
	if err != nil || status != http.StatusOK {
		t.fatalf("load clinic %s: status=%d err=%v body=%s", demoSlug, status, err, raw)
		return nil
	}
	var p profile
	if err := json.Unmarshal(raw, &p); err != nil || len(p.Dentists) == 0 {
		t.fatalf("clinic profile unusable: %v %s", err, raw)
		return nil
	}
	return &p
}

func book(p *profile, dentist int, start time.Time, minutes int, patient string) (int, *appointment, error) {
	status, raw, err := call(http.MethodPost, "/appointments/book", map[string]interface{}{
		"clinicaId":        p.ID,
		"dentistaId":       p.Dentists[dentist].ID,
		"nombrePaciente":   patient,
		"apellidoPaciente": "Prueba",
		"telefonoPaciente": "+52 55 0000 0000",
		"fechaHora":        start.Format(time.RFC3339),
		"duracionMinutos":  minutes,
		"motivo":           "Revisión e2e",
	})
	if err != nil || status != http.StatusCreated {
		return status, nil, err
	}
	var a appointment
	if err := json.Unmarshal(raw, &a); err != nil {
		return status, nil, err
	}
	return status, &a, nil
}

func cleanup(ids ...string) {
	for _, id := range ids {
		_, _, _ = call(http.MethodDelete, "/appointments/"+id, nil)
	}
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func scenarioHealth(t *T) {
	status, raw, err := call(http.MethodGet, "/health", nil)
	t.check("health responds", err == nil)
	t.check("health is 200", status == http.StatusOK)
	t.check("status healthy", strings.Contains(string(raw), `"healthy"`))

	p := loadProfile(t)
	if p == nil {
		return
	}
	t.check("clinic has a name", p.Name != "")
	t.check("clinic lists dentists", len(p.Dentists) >= 1)
}

func scenarioBookingFlow(t *T) {
	p := loadProfile(t)
	if p == nil {
		return
	}
	start := baseSlot
	status, appt, err := book(p, 0, start, 30, "Lucía")
	if err != nil || appt == nil {
		t.fatalf("book: status=%d err=%v", status, err)
		return
	}
	defer cleanup(appt.ID)
	t.check("booking returns 201", status == http.StatusCreated)
	t.check("new booking is Pendiente", appt.Status == "Pendiente")
	t.check("dentist name denormalized", appt.DentistName != "")

	q := url.Values{}
	q.Set("clinicaId", p.ID)
	q.Set("desde", start.Add(-time.Hour).Format(time.RFC3339))
	q.Set("hasta", start.Add(time.Hour).Format(time.RFC3339))
	status, raw, _ := call(http.MethodGet, "/appointments?"+q.Encode(), nil)
	var list []appointment
	_ = json.Unmarshal(raw, &list)
	found := false
	for _, a := range list {
		found = found || a.ID == appt.ID
	}
	t.check("list returns 200", status == http.StatusOK)
	t.check("list includes booking", found)

	status, raw, _ = call(http.MethodPatch, "/appointments/"+appt.ID+"/status", map[string]string{"estado": "Confirmada"})
	t.check("status change returns 200", status == http.StatusOK)
	t.check("status is Confirmada", strings.Contains(string(raw), `"Confirmada"`))

	status, _, _ = call(http.MethodPatch, "/appointments/"+appt.ID+"/status", map[string]string{"estado": "Perdida"})
	t.check("unknown status rejected", status == http.StatusBadRequest)

	status, raw, _ = call(http.MethodDelete, "/appointments/"+appt.ID, nil)
	t.check("cancel returns 200", status == http.StatusOK)
	t.check("status is Cancelada", strings.Contains(string(raw), `"Cancelada"`))
}

func scenarioDoubleBooking(t *T) {
	p := loadProfile(t)
	if p == nil {
		return
	}
	start := baseSlot.Add(2 * time.Hour)
	_, first, err := book(p, 0, start, 60, "Pedro")
	if err != nil || first == nil {
		t.fatalf("first booking failed: %v", err)
		return
	}
	defer cleanup(first.ID)

	status, second, _ := book(p, 0, start.Add(30*time.Minute), 30, "Rosa")
	t.check("overlapping slot rejected", status == http.StatusBadRequest && second == nil)

	status, adjacent, _ := book(p, 0, start.Add(time.Hour), 30, "Rosa")
	t.check("back-to-back slot accepted", status == http.StatusCreated && adjacent != nil)
	if adjacent != nil {
		defer cleanup(adjacent.ID)

		status, _, _ = call(http.MethodPatch, "/appointments/"+adjacent.ID+"/reschedule", map[string]interface{}{
			"fechaHora":       start.Format(time.RFC3339),
			"duracionMinutos": 30,
		})
		t.check("reschedule into taken slot rejected", status == http.StatusBadRequest)
	}

	if len(p.Dentists) > 1 {
		status, other, _ := book(p, 1, start, 60, "Rosa")
		t.check("other dentist free at same time", status == http.StatusCreated)
		if other != nil {
			cleanup(other.ID)
		}
	}

	cleanup(first.ID)
	status, rebooked, _ := book(p, 0, start, 60, "Rosa")
	t.check("cancelled slot can be rebooked", status == http.StatusCreated)
	if rebooked != nil {
		cleanup(rebooked.ID)
	}
}

func scenarioChat(t *T) {
	status, raw, err := call(http.MethodPost, "/chat/"+demoSlug, map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": "¿Qué horario tienen?"}},
	})
	t.check("chat responds", err == nil)
	t.check("chat is 200", status == http.StatusOK)
	var body struct {
		Response string `json:"response"`
	}
	_ = json.Unmarshal(raw, &body)
	t.check("chat reply not empty", strings.TrimSpace(body.Response) != "")

	status, _, _ = call(http.MethodPost, "/chat/"+demoSlug, map[string]interface{}{"messages": []interface{}{}})
	t.check("empty conversation rejected", status == http.StatusBadRequest)
}

func main() {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if apiBase == "" {
		fmt.Fprintln(os.Stderr, "ERROR: API_BASE_URL required")
		os.Exit(1)
	}

	scenarios := []scenario{
		{"health", scenarioHealth},
		{"booking-flow", scenarioBookingFlow},
		{"double-booking", scenarioDoubleBooking},
		{"chat", scenarioChat},
	}

	// Filter by name if argument provided
	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed := 0
	totalFailed := 0
	scenarioResults := make([]string, 0)

	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}

		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name}
		s.Fn(t)

		totalPassed += t.passed
		totalFailed += t.failed

		status := "✅"
		if t.failed > 0 {
			status = "❌"
		}
		scenarioResults = append(scenarioResults, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Println("SUMMARY")
	fmt.Printf("========================================\n")
	for _, r := range scenarioResults {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)

	if totalFailed > 0 {
		fmt.Println("\n❌ SOME TESTS FAILED")
		os.Exit(1)
	}
	fmt.Println("\n✅ ALL TESTS PASSED")
}
