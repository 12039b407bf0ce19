package modules

import (
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPResolver fetches http(s) specifiers. Fetches block until a response
// arrives or the client timeout expires. When a Cache is set, successful
// fetches are stored and a cached copy is served on network failure.
type HTTPResolver struct {
	Client *http.Client
	Cache  *SourceCache
}

const defaultHTTPTimeout = 30 * time.Second

func NewHTTPResolver(timeout time.Duration, cache *SourceCache) *HTTPResolver {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPResolver{
		Client: &http.Client{Timeout: timeout},
		Cache:  cache,
	}
}

func (r *HTTPResolver) Priority() int { return 20 }

func (r *HTTPResolver) CanResolve(specifier string, from *Module) bool {
	return isURL(specifier) || (from != nil && from.Remote && isRelative(specifier))
}

func (r *HTTPResolver) Resolve(specifier string, from *Module) (Resolved, error) {
	u, err := url.Parse(specifier)
	if err != nil {
		return Resolved{}, &ModuleNotFoundError{Specifier: specifier}
	}
	if !u.IsAbs() && from != nil && from.Remote {
		base, err := url.Parse(from.Origin)
		if err != nil {
			return Resolved{}, &ModuleNotFoundError{Specifier: specifier}
		}
		u = base.ResolveReference(u)
	}
	s := u.String()
	return Resolved{ID: ModuleID(s), Origin: s}, nil
}

func (r *HTTPResolver) Load(id ModuleID) (Source, error) {
	target := string(id)
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	resp, err := client.Get(target)
	if err != nil {
		return r.fromCache(target, &NetworkError{URL: target, Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Source{}, &HttpStatusError{URL: target, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return r.fromCache(target, &NetworkError{URL: target, Err: err})
	}

	if r.Cache != nil {
		if err := r.Cache.Put(target, string(body)); err != nil {
			log.Warningf("%s", err)
		}
	}
	return Source{Text: string(body)}, nil
}

func (r *HTTPResolver) fromCache(target string, netErr error) (Source, error) {
	if r.Cache == nil {
		return Source{}, netErr
	}
	body, fetched, ok, err := r.Cache.Get(target)
	if err != nil {
		log.Warningf("%s", err)
		return Source{}, netErr
	}
	if !ok {
		return Source{}, netErr
	}
	log.Infof("serving %s from cache (fetched %s): %v", target, fetched.Format(time.RFC3339), netErr)
	return Source{Text: body}, nil
}
