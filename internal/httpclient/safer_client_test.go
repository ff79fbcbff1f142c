package httpclient

import (
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"10.1.2.3", true},
		{"172.20.0.1", true},
		{"192.168.1.1", true},
		{"127.0.0.1", true},
		{"169.254.169.254", true},
		{"::1", true},
		{"fd00::1", true},
		{"fe80::1", true},
		{"8.8.8.8", false},
		{"104.18.2.161", false},
		{"2606:4700::1111", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.private, isPrivateIP(net.ParseIP(tt.ip)))
		})
	}
}

func TestValidateURL(t *testing.T) {
	c := New(time.Second)

	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"public https", "https://openrouter.ai/api/v1/chat/completions", ""},
		{"file scheme", "file:///etc/passwd", "not allowed"},
		{"localhost", "http://localhost:11434/v1", "localhost access blocked"},
		{"metadata endpoint", "http://169.254.169.254/latest", "private IP address blocked"},
		{"credentials", "http://user@openrouter.ai/", "@ character"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			require.NoError(t, err)
			err = c.validateURL(u)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLocalClientReachesLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	allow := false
	c := NewWithOptions(time.Second, Options{BlockPrivateIP: &allow})
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	blocked := New(time.Second)
	_, err = blocked.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSRF")
}
