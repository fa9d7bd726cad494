package http_test

import (
	"net/http/httptest"
	"testing"

	pkghttp "github.com/castellanhq/castellan/pkg/http"
	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP(t *testing.T) {
	trusted := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		config     *pkghttp.IPConfig
		expected   string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.9:54321",
			expected:   "203.0.113.9",
		},
		{
			name:       "forwarded header from untrusted source is ignored",
			remoteAddr: "203.0.113.9:54321",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			config:     trusted,
			expected:   "203.0.113.9",
		},
		{
			name:       "forwarded header from trusted proxy",
			remoteAddr: "10.1.2.3:443",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			config:     trusted,
			expected:   "198.51.100.1",
		},
		{
			name:       "first valid address in forwarded chain wins",
			remoteAddr: "10.1.2.3:443",
			headers:    map[string]string{"X-Forwarded-For": "garbage, 198.51.100.1, 10.1.2.3"},
			config:     trusted,
			expected:   "198.51.100.1",
		},
		{
			name:       "x-real-ip from trusted proxy",
			remoteAddr: "10.1.2.3:443",
			headers:    map[string]string{"X-Real-IP": "198.51.100.7"},
			config:     trusted,
			expected:   "198.51.100.7",
		},
		{
			name:       "trusted proxy with unusable headers",
			remoteAddr: "10.1.2.3:443",
			headers:    map[string]string{"X-Forwarded-For": "garbage"},
			config:     trusted,
			expected:   "10.1.2.3",
		},
		{
			name:       "nil config never honors headers",
			remoteAddr: "10.1.2.3:443",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			expected:   "10.1.2.3",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "203.0.113.9",
			expected:   "203.0.113.9",
		},
		{
			name:       "empty remote addr",
			remoteAddr: "",
			expected:   "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.expected, pkghttp.ExtractClientIP(req, tt.config))
		})
	}
}
