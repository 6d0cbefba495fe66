// Package leancloud bridges a third-party MAC credential into a LeanCloud
// user directory. The directory registers the identity on first sight and
// logs it in afterwards; this client only surfaces success or failure.
package leancloud

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/tapflow/deviceauth"
)

var log = logrus.WithField("module", "federation.leancloud")

const (
	DefaultUserAgent = "LeanCloud-CSharp-SDK/1.0.3"
	DefaultProvider  = "taptap"
)

// Config holds the directory-level application credentials and endpoint.
// UsersURL and AppID/AppKey are required; the rest defaults.
type Config struct {
	AppID    string
	AppKey   string
	UsersURL string

	UserAgent string
	// Provider is the key under authData the credential is filed under.
	Provider string
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	return c
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg.withDefaults(), httpClient: httpClient}
}

type authData struct {
	Kid          string `json:"kid"`
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	MacKey       string `json:"mac_key"`
	MacAlgorithm string `json:"mac_algorithm"`
	OpenID       string `json:"openid"`
	UnionID      string `json:"unionid"`
}

// RegisterOrLogin files the credential and identity under the directory's
// federated-auth envelope. Authentication here is by application id/key
// headers, not by the MAC scheme. Any non-2xx response is a hard error.
func (c *Client) RegisterOrLogin(ident deviceauth.Identity, cred deviceauth.Credential) error {
	payload := map[string]map[string]authData{
		"authData": {
			c.cfg.Provider: {
				Kid: cred.KeyID(),
				// The directory expects the key id again as the access
				// token for mac-type credentials.
				AccessToken:  cred.KeyID(),
				TokenType:    "mac",
				MacKey:       cred.MACKey(),
				MacAlgorithm: cred.MACAlgorithm(),
				OpenID:       ident.OpenID(),
				UnionID:      ident.UnionID(),
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.cfg.UsersURL, bytes.NewReader(body))
	if err != nil {
		log.WithError(err).Debug("error creating request")
		return err
	}
	req.Header.Set("X-LC-Id", c.cfg.AppID)
	req.Header.Set("X-LC-Key", c.cfg.AppKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Debug("error sending request")
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Debug("error reading response body")
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("leancloud: HTTP %d: %s", resp.StatusCode, data)
	}

	log.WithField("provider", c.cfg.Provider).Debug("identity federated")
	return nil
}
