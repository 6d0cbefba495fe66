package taptap

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tapflow/deviceauth"
)

var log = logrus.WithField("module", "provider.taptap")

// Provider implements the TapTap device authorization grant plus the
// MAC-signed account-info call. It satisfies deviceauth.Provider and
// deviceauth.IdentityFetcher.
type Provider struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config, httpClient *http.Client) *Provider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Provider{cfg: cfg.withDefaults(), httpClient: httpClient}
}

// GrantResponse is the data object of a successful device-code response.
type GrantResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	Interval        int    `json:"interval"`
}

type Grant struct {
	gr *GrantResponse
}

func (g *Grant) DeviceCode() string      { return g.gr.DeviceCode }
func (g *Grant) UserCode() string        { return g.gr.UserCode }
func (g *Grant) VerificationURL() string { return g.gr.VerificationURL }

func (g *Grant) Interval() time.Duration {
	if g.gr.Interval <= 0 {
		return 5 * time.Second
	}
	return time.Duration(g.gr.Interval) * time.Second
}

// TokenResponse is the data object of a successful token exchange.
type TokenResponse struct {
	Kid          string `json:"kid"`
	MacKey       string `json:"mac_key"`
	MacAlgorithm string `json:"mac_algorithm"`
	TokenType    string `json:"token_type"`
}

type Credential struct {
	tr *TokenResponse
}

func (c *Credential) KeyID() string  { return c.tr.Kid }
func (c *Credential) MACKey() string { return c.tr.MacKey }

func (c *Credential) MACAlgorithm() string {
	if c.tr.MacAlgorithm == "" {
		return macAlgorithm
	}
	return c.tr.MacAlgorithm
}

const (
	errAuthorizationPending = "authorization_pending"
	errAuthorizationWaiting = "authorization_waiting"
	errSlowDown             = "slow_down"
)

// encodeInfo builds the device-id envelope both endpoints expect in the
// info form field.
func encodeInfo(deviceID string) string {
	b, err := json.Marshal(map[string]string{"device_id": deviceID})
	if err != nil {
		return `{"device_id":""}`
	}
	return string(b)
}

// RequestGrant issues a device code for this device id. A success=false
// body is a hard ProtocolError even under a 2xx status.
func (p *Provider) RequestGrant(deviceID string) (deviceauth.Grant, error) {
	form := url.Values{}
	form.Set("client_id", p.cfg.ClientID)
	form.Set("response_type", "device_code")
	form.Set("scope", p.cfg.Scope)
	form.Set("version", p.cfg.DeviceCodeVersion)
	form.Set("platform", p.cfg.Platform)
	form.Set("info", encodeInfo(deviceID))

	data, status, err := p.postForm(p.cfg.DeviceCodeURL, form)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &TransportError{Status: status, Body: string(data)}
	}

	// The endpoint omits the success flag on some responses; only an
	// explicit false is a failure here.
	var env struct {
		Success *bool           `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.WithError(err).Debug("error unmarshaling device code response")
		return nil, &ProtocolError{Body: string(data)}
	}
	if env.Success != nil && !*env.Success {
		log.Debug("device code endpoint reported failure")
		return nil, &ProtocolError{Body: string(data)}
	}

	var gr GrantResponse
	if err := json.Unmarshal(env.Data, &gr); err != nil {
		log.WithError(err).Debug("error unmarshaling device code data")
		return nil, &ProtocolError{Body: string(data)}
	}
	return &Grant{gr: &gr}, nil
}

// PollOnce performs a single token exchange attempt and classifies the
// outcome. Pending and slow-down signals are recognized regardless of the
// HTTP status; the provider has been seen emitting them under both 2xx
// and 4xx.
func (p *Provider) PollOnce(deviceCode, deviceID string) deviceauth.PollResult {
	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("client_id", p.cfg.ClientID)
	form.Set("secret_type", macAlgorithm)
	form.Set("code", deviceCode)
	form.Set("version", p.cfg.TokenVersion)
	form.Set("platform", p.cfg.Platform)
	form.Set("info", encodeInfo(deviceID))

	data, status, err := p.postForm(p.cfg.TokenURL, form)
	if err != nil {
		return deviceauth.PollResult{State: deviceauth.PollFailed, Err: err}
	}
	return classifyToken(status, data)
}

func classifyToken(status int, data []byte) deviceauth.PollResult {
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	parseErr := json.Unmarshal(data, &env)

	if parseErr != nil || !env.Success {
		switch code := wireErrorCode(data); code {
		case errAuthorizationPending, errAuthorizationWaiting:
			return deviceauth.PollResult{State: deviceauth.PollPending}
		case errSlowDown:
			return deviceauth.PollResult{State: deviceauth.PollSlowDown}
		default:
			if status < 200 || status >= 300 {
				return failed(&TransportError{Status: status, Body: string(data)})
			}
			if parseErr != nil {
				return failed(&UnrecognizedError{Body: string(data)})
			}
			return failed(&BusinessError{Code: code, Body: string(data)})
		}
	}

	if status < 200 || status >= 300 {
		return failed(&TransportError{Status: status, Body: string(data)})
	}

	var tr TokenResponse
	if err := json.Unmarshal(env.Data, &tr); err != nil || tr.Kid == "" || tr.MacKey == "" {
		return failed(&UnrecognizedError{Body: string(data)})
	}
	return deviceauth.PollResult{
		State:      deviceauth.PollAuthorized,
		Credential: &Credential{tr: &tr},
	}
}

func failed(err error) deviceauth.PollResult {
	return deviceauth.PollResult{State: deviceauth.PollFailed, Err: err}
}

// wireErrorCode extracts the provider's error code from a failure body.
// The code has been observed both at the top level and nested under data;
// as a last resort the raw body is scanned for the known pending and
// slow-down markers, matching how the provider's own SDKs behave.
func wireErrorCode(data []byte) string {
	var e struct {
		Error string `json:"error"`
		Data  struct {
			Error string `json:"error"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Data.Error != "" {
			return e.Data.Error
		}
	}
	for _, code := range []string{errAuthorizationPending, errAuthorizationWaiting, errSlowDown} {
		if bytes.Contains(data, []byte(code)) {
			return code
		}
	}
	return ""
}

func (p *Provider) postForm(endpoint string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		log.WithError(err).Debug("error creating request")
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Debug("error sending request")
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Debug("error reading response body")
		return nil, 0, err
	}
	return data, resp.StatusCode, nil
}
