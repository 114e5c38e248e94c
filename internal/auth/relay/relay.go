// Package relay moves a session token from the apex domain to a tenant
// subdomain through a two-hop redirect handshake.
//
// Hop 1 (AwaitingToken) runs wherever the user currently holds a session: it
// reads the session cookie and forwards it to the target host's relay endpoint.
// Hop 2 (TokenReceived) runs on the target host: it verifies the token and only
// then sets a host-scoped cookie and redirects to the destination.
package relay

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	authdomain "github.com/smallbiznis/washbay/internal/auth/domain"
	"github.com/smallbiznis/washbay/internal/hostresolver"
)

const (
	Path       = "/api/auth/session-relay"
	LogoutPath = "/api/auth/logout"
	LoginPath  = "/login"
)

type State int

const (
	AwaitingToken State = iota
	TokenReceived
)

func (s State) String() string {
	if s == TokenReceived {
		return "token_received"
	}
	return "awaiting_token"
}

var (
	ErrMissingCallback = errors.New("callbackUrl is required")
	ErrInvalidCallback = errors.New("callbackUrl must target this application")
)

// Verifier checks a raw session token.
type Verifier interface {
	Verify(raw string) (authdomain.Identity, time.Time, error)
}

// Request is the transport-independent input of one hop.
type Request struct {
	Host          string
	CallbackURL   string
	Token         string
	SessionCookie string
}

// Outcome tells the transport what to write. Err is set only for 400 responses.
type Outcome struct {
	State         State
	Status        int
	Location      string
	Err           error
	SetCookie     bool
	CookieValue   string
	CookieExpires time.Time
	// Result is a low-cardinality label for logs and metrics.
	Result string
}

type Relay struct {
	verifier Verifier
	resolver *hostresolver.Resolver
}

func New(verifier Verifier, resolver *hostresolver.Resolver) *Relay {
	return &Relay{verifier: verifier, resolver: resolver}
}

// StateOf classifies a request by whether it carries a token.
func StateOf(req Request) State {
	if strings.TrimSpace(req.Token) != "" {
		return TokenReceived
	}
	return AwaitingToken
}

// Step runs a single hop.
func (r *Relay) Step(req Request) Outcome {
	state := StateOf(req)
	callback := strings.TrimSpace(req.CallbackURL)
	if callback == "" {
		return Outcome{State: state, Status: http.StatusBadRequest, Err: ErrMissingCallback, Result: "missing_callback"}
	}
	if state == TokenReceived {
		return r.receive(req, callback)
	}
	return r.forward(req, callback)
}

func (r *Relay) forward(req Request, callback string) Outcome {
	origin, target, err := r.splitCallback(req.Host, callback)
	if err != nil {
		return Outcome{State: AwaitingToken, Status: http.StatusBadRequest, Err: err, Result: "invalid_callback"}
	}
	token := strings.TrimSpace(req.SessionCookie)
	if token == "" {
		return Outcome{State: AwaitingToken, Status: http.StatusFound, Location: LoginPath, Result: "no_session"}
	}
	location := origin + Path + "?token=" + url.QueryEscape(token) + "&callbackUrl=" + escapeTarget(target)
	return Outcome{State: AwaitingToken, Status: http.StatusFound, Location: location, Result: "forwarded"}
}

func (r *Relay) receive(req Request, callback string) Outcome {
	target, err := localTarget(callback)
	if err != nil {
		return Outcome{State: TokenReceived, Status: http.StatusBadRequest, Err: err, Result: "invalid_callback"}
	}
	_, expiresAt, err := r.verifier.Verify(req.Token)
	if err != nil {
		return Outcome{State: TokenReceived, Status: http.StatusFound, Location: LoginPath, Result: "rejected"}
	}
	return Outcome{
		State:         TokenReceived,
		Status:        http.StatusFound,
		Location:      r.resolver.Scheme + "://" + strings.ToLower(strings.TrimSpace(req.Host)) + target,
		SetCookie:     true,
		CookieValue:   strings.TrimSpace(req.Token),
		CookieExpires: expiresAt,
		Result:        "session_set",
	}
}

// splitCallback returns the origin to forward to and the path+query to land on.
// Absolute callbacks must point at the base domain or one of its tenants.
func (r *Relay) splitCallback(host, callback string) (string, string, error) {
	u, err := url.Parse(callback)
	if err != nil {
		return "", "", ErrInvalidCallback
	}
	if !u.IsAbs() && u.Host == "" {
		target, err := localTarget(callback)
		if err != nil {
			return "", "", err
		}
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" {
			return "", "", ErrInvalidCallback
		}
		return r.resolver.Scheme + "://" + host, target, nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", ErrInvalidCallback
	}
	if u.User != nil || !r.resolver.Owns(u.Host) {
		return "", "", ErrInvalidCallback
	}
	return u.Scheme + "://" + strings.ToLower(u.Host), pathAndQuery(u), nil
}

// localTarget accepts only same-host paths. Absolute URLs keep their path and
// query; their host is discarded in favour of the actual request host.
func localTarget(callback string) (string, error) {
	u, err := url.Parse(callback)
	if err != nil {
		return "", ErrInvalidCallback
	}
	if u.IsAbs() || u.Host != "" {
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", ErrInvalidCallback
		}
		return pathAndQuery(u), nil
	}
	if !strings.HasPrefix(callback, "/") || strings.HasPrefix(callback, "//") || strings.Contains(callback, "\\") {
		return "", ErrInvalidCallback
	}
	return pathAndQuery(u), nil
}

func pathAndQuery(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

// escapeTarget query-escapes a path+query while keeping slashes readable.
func escapeTarget(target string) string {
	return strings.ReplaceAll(url.QueryEscape(target), "%2F", "/")
}
