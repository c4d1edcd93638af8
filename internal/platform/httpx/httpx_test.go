package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("line x: %w", ErrNotFound):   http.StatusNotFound,
		fmt.Errorf("bad id: %w", ErrValidation): http.StatusBadRequest,
		fmt.Errorf("%w: redis", ErrUnavailable): http.StatusServiceUnavailable,
		fmt.Errorf("boom"):                      http.StatusInternalServerError,
	}
	for err, status := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, err)
		require.Equal(t, status, rec.Code)
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, status, body.Status)
		if status == http.StatusInternalServerError {
			require.Empty(t, body.Detail)
		}
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Amount string `json:"amount"`
	}
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"amount":"1","extra":true}`))
	err := DecodeJSON(req, &target)
	require.ErrorIs(t, err, ErrValidation)

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"amount":"12.5"}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, "12.5", target.Amount)
}
