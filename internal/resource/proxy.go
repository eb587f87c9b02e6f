package resource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/vbp1/magicwand/internal/log"
)

// Publisher makes a stored resource reachable from the web.
type Publisher interface {
	Publish(hash, filename string) error
}

// Proxy resolves resources from local storage and falls back to the origin.
type Proxy struct {
	storage Storage
	target  Publisher
	origin  *Origin
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// statusError is a well-formed origin answer other than 200. It does not
// count against the breaker.
type statusError struct{ status int }

func (e statusError) Error() string { return fmt.Sprintf("status %d", e.status) }

// NewProxy returns a Proxy. origin may be nil, then only local resources resolve.
func NewProxy(storage Storage, target Publisher, origin *Origin) (*Proxy, error) {
	p := &Proxy{storage: storage, target: target, origin: origin, log: *log.Component("resource")}
	if origin == nil {
		return p, nil
	}
	client, err := origin.Client()
	if err != nil {
		return nil, fmt.Errorf("origin client: %w", err)
	}
	p.client = client
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "resource-origin",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var se statusError
			return err == nil || errors.As(err, &se)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("origin breaker state change")
		},
	})
	return p, nil
}

// Enabled reports whether an origin is configured.
func (p *Proxy) Enabled() bool { return p.origin != nil }

// Resolve returns an open handle on the resource, fetching and publishing it
// first when it is missing locally.
func (p *Proxy) Resolve(ctx context.Context, hash, filename string) (*os.File, error) {
	if err := ValidateHash(hash); err != nil {
		return nil, err
	}
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}
	if p.storage.Has(hash) {
		return p.storage.Open(hash)
	}
	if p.origin == nil {
		return nil, fmt.Errorf("%w: %s (no origin configured)", ErrResourceNotFound, hash)
	}

	uri := p.origin.URI(hash, filename)
	res, err := p.breaker.Execute(func() (interface{}, error) {
		return p.fetch(ctx, uri)
	})
	if err != nil {
		var se statusError
		if errors.As(err, &se) {
			return nil, &ResourceNotFoundError{URI: uri, Status: se.status}
		}
		return nil, &ResourceNotFoundError{URI: uri, Err: err}
	}
	resp := res.(*http.Response)
	defer resp.Body.Close()

	path, err := p.storage.Store(hash, resp.Body)
	if err != nil {
		return nil, err
	}
	p.log.Info().Str("hash", hash).Str("uri", uri).Str("path", path).Msg("resource fetched")

	if p.target != nil {
		if err := p.target.Publish(hash, filename); err != nil {
			return nil, fmt.Errorf("publish %s: %w", hash, err)
		}
	}
	return p.storage.Open(hash)
}

func (p *Proxy) fetch(ctx context.Context, uri string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range p.origin.HTTP.Headers {
		req.Header.Set(k, v)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, statusError{status: resp.StatusCode}
	}
	return resp, nil
}
