package fetcher

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const maxResponseBodySize = 4 << 20 // 4MB, activity pages are script-heavy

// connection pooling limits; a single target is polled so these stay small
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 2
	defaultMaxConnsPerHost     = 4
	defaultIdleConnTimeout     = 60 * time.Second
)

// DefaultUserAgent mimics a desktop browser; some booking sites serve an
// empty shell to unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// newRestyClient builds the resty client used for page loads.
//
// Timeouts are applied per request via context rather than on the client,
// so a single client can serve fetches with different timeouts.
func newRestyClient() *resty.Client {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			MaxConnsPerHost:     defaultMaxConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
		},
	}

	client := resty.NewWithClient(httpClient)
	client.SetHeader("User-Agent", DefaultUserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml")
	return client
}

// closeIdle releases pooled connections held by the client.
func closeIdle(client *resty.Client) {
	if client == nil {
		return
	}
	if transport, ok := client.GetClient().Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
