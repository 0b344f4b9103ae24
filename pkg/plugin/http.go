package plugin

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/walteh/srcsrv/pkg/auth"
)

// HTTPClient builds the client every provider shares: bounded timeout and
// the configured certificate-verification policy applied uniformly.
func HTTPClient(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport
	if !opts.TLSVerify() {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Get performs one authenticated provider GET and returns the response body,
// mapping failures onto the FetchError taxonomy.
func Get(ctx context.Context, client *http.Client, cred auth.Credential, url string, header http.Header) ([]byte, error) {
	logger := zerolog.Ctx(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, TransportError(url, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	cred.Apply(req)

	resp, err := client.Do(req)
	if err != nil {
		return nil, TransportError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, StatusError(url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, TransportError(url, err)
	}

	logger.Debug().Str("url", url).Int("bytes", len(body)).Msg("provider fetch")
	return body, nil
}
