package relay

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/washbay/internal/auth/domain"
	"github.com/smallbiznis/washbay/internal/auth/session"
	"github.com/smallbiznis/washbay/internal/clock"
	"github.com/smallbiznis/washbay/internal/config"
	"github.com/smallbiznis/washbay/internal/hostresolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type relayFixture struct {
	router *gin.Engine
	tokens *session.Tokens
	token  string
}

func newRelayFixture(t *testing.T) relayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tokens := session.NewTokensWithSecret("relay-secret", time.Hour, clk)
	token, _, err := tokens.Issue(authdomain.Identity{UserID: "u-1", GlobalRole: authdomain.RoleUser, TenantSlug: "demo"})
	require.NoError(t, err)

	h := NewHandler(Params{
		Tokens:   tokens,
		Sessions: session.NewManager(config.Config{}, clk),
		Resolver: &hostresolver.Resolver{BaseDomain: "base", Scheme: "http"},
		Log:      zap.NewNop(),
	})
	r := gin.New()
	RegisterRoutes(r, h)
	return relayFixture{router: r, tokens: tokens, token: token}
}

func (f relayFixture) do(host, target string, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Host = host
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: cookie})
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRelayRoundTrip(t *testing.T) {
	f := newRelayFixture(t)

	// Hop 1 on the apex host forwards the cookie value to the tenant host.
	w := f.do("base", Path+"?callbackUrl="+url.QueryEscape("http://demo.base/dashboard"), f.token)
	require.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")
	assert.Equal(t, "http://demo.base/api/auth/session-relay?token="+f.token+"&callbackUrl=/dashboard", location)
	assert.Empty(t, w.Result().Cookies(), "hop 1 must never set a cookie")

	// Hop 2 on the tenant host verifies and sets the cookie.
	hop2, err := url.Parse(location)
	require.NoError(t, err)
	w = f.do(hop2.Host, hop2.RequestURI(), "")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://demo.base/dashboard", w.Header().Get("Location"))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.DefaultCookieName, cookies[0].Name)
	assert.Equal(t, f.token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Empty(t, cookies[0].Domain)
}

func TestRelayTamperedTokenFailsClosed(t *testing.T) {
	f := newRelayFixture(t)
	tampered := f.token[:len(f.token)-4] + "AAAA"
	w := f.do("demo.base", Path+"?token="+url.QueryEscape(tampered)+"&callbackUrl=/dashboard", "")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, LoginPath, w.Header().Get("Location"))
	assert.Empty(t, w.Result().Cookies())
}

func TestRelayHop2UsesActualHost(t *testing.T) {
	f := newRelayFixture(t)
	w := f.do("demo.base", Path+"?token="+url.QueryEscape(f.token)+"&callbackUrl="+url.QueryEscape("http://evil.com/steal?x=1"), "")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://demo.base/steal?x=1", w.Header().Get("Location"))
}

func TestRelayMissingCallback(t *testing.T) {
	f := newRelayFixture(t)
	for _, target := range []string{Path, Path + "?token=" + url.QueryEscape(f.token)} {
		w := f.do("demo.base", target, f.token)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Empty(t, w.Header().Get("Location"))
		assert.Contains(t, w.Body.String(), "callbackUrl")
	}
}

func TestRelayHop1RejectsForeignCallback(t *testing.T) {
	f := newRelayFixture(t)
	for _, callback := range []string{"http://evil.com/dashboard", "//evil.com/x", "javascript:alert(1)", "http://evilbase/x"} {
		w := f.do("base", Path+"?callbackUrl="+url.QueryEscape(callback), f.token)
		assert.Equal(t, http.StatusBadRequest, w.Code, callback)
	}
}

func TestRelayHop1WithoutSessionRedirectsToLogin(t *testing.T) {
	f := newRelayFixture(t)
	w := f.do("base", Path+"?callbackUrl="+url.QueryEscape("http://demo.base/dashboard"), "")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, LoginPath, w.Header().Get("Location"))
}

func TestRelayHop1RelativeCallbackStaysOnHost(t *testing.T) {
	f := newRelayFixture(t)
	w := f.do("demo.base", Path+"?callbackUrl="+url.QueryEscape("/orders?page=2"), f.token)
	require.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, "http://demo.base"+Path+"?token="), location)
	u, err := url.Parse(location)
	require.NoError(t, err)
	assert.Equal(t, "/orders?page=2", u.Query().Get("callbackUrl"))
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, AwaitingToken, StateOf(Request{}))
	assert.Equal(t, TokenReceived, StateOf(Request{Token: "x"}))
	assert.Equal(t, "token_received", TokenReceived.String())
}

func TestLogoutClearsHostAndSharedDomainCookies(t *testing.T) {
	f := newRelayFixture(t)

	req := httptest.NewRequest(http.MethodPost, LogoutPath, nil)
	req.Host = "demo.base.test:3000"
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: f.token})
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, LoginPath, w.Header().Get("Location"))

	domains := map[string]bool{}
	for _, ck := range w.Result().Cookies() {
		require.Equal(t, session.DefaultCookieName, ck.Name)
		assert.Empty(t, ck.Value)
		assert.Less(t, ck.MaxAge, 0)
		domains[ck.Domain] = true
	}
	assert.Equal(t, map[string]bool{"": true, "base.test": true}, domains)
}

func TestLogoutOnIPHostClearsOnlyHostCookie(t *testing.T) {
	f := newRelayFixture(t)

	req := httptest.NewRequest(http.MethodPost, LogoutPath, nil)
	req.Host = "192.168.1.8:3000"
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Domain)
}
