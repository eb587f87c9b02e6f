package resource

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPOptions configure requests to the origin.
type HTTPOptions struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	Proxy              string
	Headers            map[string]string
}

// Origin is the remote installation serving published resources.
type Origin struct {
	BaseURI   string
	Subdivide bool
	HTTP      HTTPOptions
}

// URI of a published resource on the origin.
func (o Origin) URI(hash, filename string) string {
	base := strings.TrimRight(o.BaseURI, "/") + "/_Resources/Persistent/"
	if o.Subdivide {
		base += hash[0:1] + "/" + hash[1:2] + "/" + hash[2:3] + "/" + hash[3:4] + "/"
	}
	return base + hash + "/" + url.PathEscape(filename)
}

// Client builds the HTTP client for the origin.
func (o Origin) Client() (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if o.HTTP.InsecureSkipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if o.HTTP.Proxy != "" {
		u, err := url.Parse(o.HTTP.Proxy)
		if err != nil {
			return nil, err
		}
		tr.Proxy = http.ProxyURL(u)
	}
	timeout := o.HTTP.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Transport: tr, Timeout: timeout}, nil
}
