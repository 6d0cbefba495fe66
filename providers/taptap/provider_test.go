package taptap

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapflow/deviceauth"
)

func testProvider(t *testing.T, srv *httptest.Server) *Provider {
	t.Helper()
	return New(Config{
		ClientID:       "client-1",
		DeviceCodeURL:  srv.URL + "/oauth2/v1/device/code",
		TokenURL:       srv.URL + "/oauth2/v1/token",
		AccountInfoURL: srv.URL + "/account/basic-info/v1",
	}, srv.Client())
}

func TestRequestGrant(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Write([]byte(`{"success":true,"data":{"device_code":"abc","user_code":"XYZ","verification_url":"https://x.example/v","interval":5}}`))
	}))
	defer srv.Close()

	grant, err := testProvider(t, srv).RequestGrant("dev-1")
	require.NoError(t, err)

	assert.Equal(t, "client-1", form.Get("client_id"))
	assert.Equal(t, "device_code", form.Get("response_type"))
	assert.Equal(t, "basic_info", form.Get("scope"))
	assert.Equal(t, "1.2.0", form.Get("version"))
	assert.Equal(t, "unity", form.Get("platform"))
	assert.JSONEq(t, `{"device_id":"dev-1"}`, form.Get("info"))

	assert.Equal(t, "abc", grant.DeviceCode())
	assert.Equal(t, "XYZ", grant.UserCode())
	assert.Equal(t, "https://x.example/v", grant.VerificationURL())
	assert.Equal(t, 5*time.Second, grant.Interval())
}

func TestRequestGrantDefaultInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"device_code":"abc","user_code":"XYZ","verification_url":"https://x.example/v"}}`))
	}))
	defer srv.Close()

	grant, err := testProvider(t, srv).RequestGrant("dev-1")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, grant.Interval())
}

func TestRequestGrantBusinessFailure(t *testing.T) {
	// The endpoint reports failure under a 2xx status; that is still a
	// hard error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"data":{"error":"invalid_client"}}`))
	}))
	defer srv.Close()

	_, err := testProvider(t, srv).RequestGrant("dev-1")
	require.Error(t, err)

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Body, "invalid_client")
}

func TestRequestGrantTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	_, err := testProvider(t, srv).RequestGrant("dev-1")

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusGatewayTimeout, terr.Status)
}

func tokenServer(t *testing.T, status int, body string) (*httptest.Server, *Provider) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "device_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "hmac-sha-1", r.PostForm.Get("secret_type"))
		assert.Equal(t, "code-1", r.PostForm.Get("code"))
		assert.Equal(t, "1.0", r.PostForm.Get("version"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	return srv, testProvider(t, srv)
}

func TestPollOncePending(t *testing.T) {
	// Pending must be recognized regardless of the HTTP status.
	for _, status := range []int{http.StatusOK, http.StatusBadRequest} {
		srv, p := tokenServer(t, status, `{"success":false,"data":{"error":"authorization_pending"}}`)
		res := p.PollOnce("code-1", "dev-1")
		srv.Close()

		assert.Equal(t, deviceauth.PollPending, res.State, "status %d", status)
		assert.NoError(t, res.Err)
	}
}

func TestPollOnceWaiting(t *testing.T) {
	srv, p := tokenServer(t, http.StatusBadRequest, `{"success":false,"error":"authorization_waiting"}`)
	defer srv.Close()

	res := p.PollOnce("code-1", "dev-1")
	assert.Equal(t, deviceauth.PollPending, res.State)
}

func TestPollOnceSlowDown(t *testing.T) {
	srv, p := tokenServer(t, http.StatusOK, `{"success":false,"error":"slow_down"}`)
	defer srv.Close()

	res := p.PollOnce("code-1", "dev-1")
	assert.Equal(t, deviceauth.PollSlowDown, res.State)
	assert.NoError(t, res.Err)
}

func TestPollOnceTransportError(t *testing.T) {
	srv, p := tokenServer(t, http.StatusBadRequest, `{"success":false,"error":"invalid_grant"}`)
	defer srv.Close()

	res := p.PollOnce("code-1", "dev-1")
	require.Equal(t, deviceauth.PollFailed, res.State)

	var terr *TransportError
	require.ErrorAs(t, res.Err, &terr)
	assert.Equal(t, http.StatusBadRequest, terr.Status)
	assert.Contains(t, terr.Body, "invalid_grant")
}

func TestPollOnceBusinessError(t *testing.T) {
	srv, p := tokenServer(t, http.StatusOK, `{"success":false,"error":"access_denied"}`)
	defer srv.Close()

	res := p.PollOnce("code-1", "dev-1")
	require.Equal(t, deviceauth.PollFailed, res.State)

	var berr *BusinessError
	require.ErrorAs(t, res.Err, &berr)
	assert.Equal(t, "access_denied", berr.Code)
}

func TestPollOnceUnparseableBody(t *testing.T) {
	srv, p := tokenServer(t, http.StatusOK, `<html>not json</html>`)
	defer srv.Close()

	res := p.PollOnce("code-1", "dev-1")
	require.Equal(t, deviceauth.PollFailed, res.State)

	var uerr *UnrecognizedError
	require.ErrorAs(t, res.Err, &uerr)
}

func TestPollOnceAuthorized(t *testing.T) {
	srv, p := tokenServer(t, http.StatusOK,
		`{"success":true,"data":{"kid":"kid-1","mac_key":"mk-1","mac_algorithm":"hmac-sha-1","token_type":"mac"}}`)
	defer srv.Close()

	res := p.PollOnce("code-1", "dev-1")
	require.Equal(t, deviceauth.PollAuthorized, res.State)
	require.NotNil(t, res.Credential)
	assert.Equal(t, "kid-1", res.Credential.KeyID())
	assert.Equal(t, "mk-1", res.Credential.MACKey())
	assert.Equal(t, "hmac-sha-1", res.Credential.MACAlgorithm())
}

var macHeaderRe = regexp.MustCompile(`^MAC id="([^"]+)",ts="(\d+)",nonce="(\d+)",mac="([^"]+)"$`)

func TestFetchIdentitySignedRoundTrip(t *testing.T) {
	cred := &Credential{tr: &TokenResponse{Kid: "kid-1", MacKey: "mk-1"}}

	var header string
	var reqURI string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("Authorization")
		reqURI = r.URL.RequestURI()
		w.Write([]byte(`{"data":{"openid":"open-1","unionid":"union-1","name":"Player"}}`))
	}))
	defer srv.Close()

	p := testProvider(t, srv)
	ident, err := p.FetchIdentity(cred)
	require.NoError(t, err)

	assert.Equal(t, "open-1", ident.OpenID())
	assert.Equal(t, "union-1", ident.UnionID())

	m := macHeaderRe.FindStringSubmatch(header)
	require.NotNil(t, m, "authorization header %q does not match MAC shape", header)
	assert.Equal(t, cred.KeyID(), m[1])

	// Recompute the digest server-side from the header's ts and nonce;
	// it must verify against the request actually received.
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	ts, err := strconv.ParseInt(m[2], 10, 64)
	require.NoError(t, err)
	nonce, err := strconv.ParseUint(m[3], 10, 32)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	want := digest(cred.MACKey(), http.MethodGet, reqURI, u.Hostname(), port, ts, uint32(nonce))
	assert.Equal(t, want, m[4])

	extra, ok := ident.(*Identity).Field("name")
	require.True(t, ok)
	assert.Equal(t, json.RawMessage(`"Player"`), extra)
}

func TestFetchIdentityTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":36101,"msg":"invalid mac"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testProvider(t, srv).FetchIdentity(&Credential{tr: &TokenResponse{Kid: "k", MacKey: "m"}})

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusUnauthorized, terr.Status)
}
