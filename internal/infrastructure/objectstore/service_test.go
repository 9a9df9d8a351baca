package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		endpoint   string
		wantHost   string
		wantSecure bool
		wantErr    bool
	}{
		{name: "https url", endpoint: "https://storage.yandexcloud.net", wantHost: "storage.yandexcloud.net", wantSecure: true},
		{name: "http url with port", endpoint: "http://localhost:9000", wantHost: "localhost:9000", wantSecure: false},
		{name: "bare host", endpoint: "storage.yandexcloud.net", wantHost: "storage.yandexcloud.net", wantSecure: true},
		{name: "empty", endpoint: "", wantErr: true},
		{name: "no host", endpoint: "https://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, secure, err := parseEndpoint(tt.endpoint)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantSecure, secure)
		})
	}
}

func TestNewServiceRequiresBucket(t *testing.T) {
	_, err := NewService(Config{Endpoint: "https://storage.yandexcloud.net"})
	assert.ErrorIs(t, err, ErrNoBucket)
}

func TestNewService(t *testing.T) {
	svc, err := NewService(Config{
		Endpoint:  "http://localhost:9000",
		AccessKey: "ak",
		SecretKey: "sk",
		Bucket:    "docs",
		Prefix:    "manuals/",
	})

	assert.NoError(t, err)
	assert.Equal(t, "docs", svc.bucket)
	assert.Equal(t, "manuals/", svc.prefix)
}
