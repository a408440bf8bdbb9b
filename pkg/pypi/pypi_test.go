package pypi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Info(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pypi/sampleproject/json":
			_, _ = w.Write([]byte(`{"info":{"name":"sampleproject","version":"3.0.0","project_urls":{"Source":"https://github.com/pypa/sampleproject/","Homepage":"https://example.com"}},"releases":{}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
		}
	}))
	defer server.Close()

	c := New(server.URL)

	info, err := c.Info(context.Background(), "sampleproject")
	require.NoError(t, err)
	assert.Equal(t, "sampleproject", info.Name)
	assert.Equal(t, "https://github.com/pypa/sampleproject/", info.ProjectURLs["Source"])

	_, err = c.Info(context.Background(), "nope")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Not Found", apiErr.Message)

	_, err = c.Info(context.Background(), "../etc")
	assert.ErrorIs(t, err, ErrInvalidPackage)
}

func TestSourceRepo(t *testing.T) {
	tests := []struct {
		name    string
		urls    map[string]string
		want    string
		wantErr error
	}{
		{
			name: "source wins over homepage",
			urls: map[string]string{"Source": "https://github.com/pypa/sampleproject/", "Homepage": "https://github.com/other/thing"},
			want: "pypa/sampleproject",
		},
		{
			name: "homepage fallback",
			urls: map[string]string{"Homepage": "https://github.com/Nixtla/statsforecast"},
			want: "Nixtla/statsforecast",
		},
		{
			name: "deep link keeps owner and repo",
			urls: map[string]string{"Source": "https://github.com/pandas-dev/pandas/tree/main"},
			want: "pandas-dev/pandas",
		},
		{name: "no urls", urls: nil, wantErr: ErrNoSource},
		{name: "not github", urls: map[string]string{"Source": "https://gitlab.com/a/b"}, wantErr: ErrNotGitHub},
		{name: "owner only", urls: map[string]string{"Source": "https://github.com/pypa"}, wantErr: ErrNoRepo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SourceRepo(Info{ProjectURLs: tt.urls})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
