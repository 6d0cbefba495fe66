package taptap

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tapflow/deviceauth"
)

// Identity is the account identity behind a credential. OpenID and
// UnionID are the fields the federation step needs; everything else the
// endpoint returns is kept raw.
type Identity struct {
	openID  string
	unionID string
	fields  map[string]json.RawMessage
}

func (i *Identity) OpenID() string  { return i.openID }
func (i *Identity) UnionID() string { return i.unionID }

// Field returns any other raw field of the account-info response.
func (i *Identity) Field(name string) (json.RawMessage, bool) {
	v, ok := i.fields[name]
	return v, ok
}

// FetchIdentity performs the MAC-signed GET for the account info. Unlike
// the token endpoint, any non-2xx status is a hard TransportError and the
// body carries no success flag worth checking.
func (p *Provider) FetchIdentity(cred deviceauth.Credential) (deviceauth.Identity, error) {
	u, err := url.Parse(p.cfg.AccountInfoURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("client_id", p.cfg.ClientID)
	u.RawQuery = q.Encode()

	port := 443
	if s := u.Port(); s != "" {
		if port, err = strconv.Atoi(s); err != nil {
			return nil, err
		}
	} else if u.Scheme == "http" {
		port = 80
	}

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		log.WithError(err).Debug("error creating request")
		return nil, err
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Authorization",
		Authorization(cred.KeyID(), cred.MACKey(), http.MethodGet, u.RequestURI(), u.Hostname(), port))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Debug("error sending request")
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Debug("error reading response body")
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Status: resp.StatusCode, Body: string(data)}
	}

	var env struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.WithError(err).Debug("error unmarshaling account info response")
		return nil, err
	}

	ident := &Identity{fields: env.Data}
	if v, ok := env.Data["openid"]; ok {
		_ = json.Unmarshal(v, &ident.openID)
	}
	if v, ok := env.Data["unionid"]; ok {
		_ = json.Unmarshal(v, &ident.unionID)
	}
	return ident, nil
}
