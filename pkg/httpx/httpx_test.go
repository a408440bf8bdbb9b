package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusBadGateway, errors.New("github: status 500"))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrorResponse{Error: "Bad Gateway", Message: "github: status 500"}, body)
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    int
		wantErr bool
	}{
		{name: "missing", query: "", want: 90},
		{name: "empty", query: "?forecast=", want: 90},
		{name: "valid", query: "?forecast=30", want: 30},
		{name: "not a number", query: "?forecast=soon", wantErr: true},
		{name: "too small", query: "?forecast=0", wantErr: true},
		{name: "too large", query: "?forecast=366", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil)
			got, err := QueryInt(r, "forecast", 90, 1, 365)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadParam)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
