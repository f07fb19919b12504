package httpx

import (
	"fmt"
	"net/http"
	"time"

	escoltatls "github.com/HatiCode/escolta/pkg/tls"
)

// NewClient creates an HTTP client, using mTLS when tlsCfg is enabled.
func NewClient(tlsCfg escoltatls.Config, timeout time.Duration) (*http.Client, error) {
	clientTLS, err := tlsCfg.Client()
	if err != nil {
		return nil, fmt.Errorf("create TLS config: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		TLSClientConfig:     clientTLS,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}
