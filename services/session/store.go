// Package session holds the bearer token shared by every client that calls the template service.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
)

var (
	ErrNoToken        = errors.New("no session token")
	ErrSessionExpired = errors.New("session expired")
)

type Event string

const (
	EventRefreshed Event = "refreshed"
	EventExpired   Event = "expired"
)

// Refresher obtains a new token.
type Refresher func(ctx context.Context) (string, error)

// Store supplies the Authorization header of outgoing requests.
// Tokens close to their "exp" claim are refreshed before use, and a request answered with 401 is retried once with a
// refreshed token. Subscribers hear about every refresh and expiry.
type Store struct {
	refresher Refresher
	leeway    time.Duration
	client    *rest.Client

	mu        sync.Mutex
	token     string
	listeners map[int]func(Event)
	nextLsnr  int
}

var nowFunc = time.Now

// NewStore returns a store holding token. refresher may be nil: the token is then used until it is rejected.
func NewStore(token string, refresher Refresher, client *http.Client) *Store {
	if client == nil {
		client = http.DefaultClient
	}
	return &Store{
		refresher: refresher,
		leeway:    30 * time.Second,
		client:    &rest.Client{HTTPClient: client},
		token:     token,
		listeners: make(map[int]func(Event)),
	}
}

// Set replaces the token, e.g. after a login.
func (s *Store) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Token returns a usable token, refreshing it first when it is about to expire.
func (s *Store) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token != "" && !s.expiring(token) {
		return token, nil
	}
	if s.refresher == nil {
		if token == "" {
			return "", ErrNoToken
		}
		return token, nil
	}
	return s.Refresh(ctx)
}

// Refresh obtains a new token from the refresher. On failure the token is dropped and subscribers are told the
// session expired.
func (s *Store) Refresh(ctx context.Context) (string, error) {
	if s.refresher == nil {
		s.expire()
		return "", ErrSessionExpired
	}
	token, err := s.refresher(ctx)
	if err != nil || token == "" {
		s.expire()
		if err == nil {
			err = ErrNoToken
		}
		return "", errors.Wrap(ErrSessionExpired, err.Error())
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	s.notify(EventRefreshed)
	return token, nil
}

// Subscribe registers fn to be called on refresh and expiry. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextLsnr
	s.nextLsnr++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Send sends req with the bearer token. A 401 answer triggers one refresh and one retry.
func (s *Store) Send(ctx context.Context, req rest.Request) (*rest.Response, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.send(ctx, req, token)
	if err != nil || res.StatusCode != http.StatusUnauthorized {
		return res, err
	}

	if token, err = s.Refresh(ctx); err != nil {
		return res, nil
	}
	return s.send(ctx, req, token)
}

// SendAnonymous sends req as is, through the same HTTP client.
func (s *Store) SendAnonymous(ctx context.Context, req rest.Request) (*rest.Response, error) {
	return s.client.SendWithContext(ctx, req)
}

func (s *Store) send(ctx context.Context, req rest.Request, token string) (*rest.Response, error) {
	headers := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		headers[k] = v
	}
	headers["Authorization"] = "Bearer " + token
	req.Headers = headers
	return s.client.SendWithContext(ctx, req)
}

// expiring reports whether the token's "exp" claim is within the leeway. Tokens that are not JWTs never expire.
func (s *Store) expiring(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return false
	}
	return nowFunc().Add(s.leeway).Unix() >= int64(exp)
}

func (s *Store) expire() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	s.notify(EventExpired)
}

func (s *Store) notify(ev Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
