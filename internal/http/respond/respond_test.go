package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"nombre" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Count int    `json:"count" validate:"min=1"`
}

func TestDecodeValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope","count":0}`))
	var s sample
	err := Decode(req, &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Name es obligatorio")
	assert.Contains(t, err.Error(), "Email debe ser un email válido")
	assert.Contains(t, err.Error(), "Count debe ser al menos 1")
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	var s sample
	require.Error(t, Decode(req, &s))
}

func TestDecodeAcceptsValidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nombre":"Ana","count":2}`))
	var s sample
	require.NoError(t, Decode(req, &s))
	assert.Equal(t, "Ana", s.Name)
}

func TestErrorWritesJSONBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusBadRequest, "malo")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "malo", body.Error)
}
