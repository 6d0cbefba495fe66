package deviceauth

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "deviceauth")

// State is the position of a Flow in its lifecycle.
type State int

const (
	StateInit State = iota
	StateAwaitingDeviceCode
	StateAwaitingAuthorization
	StateAuthorized
	StateFetchingAccount
	StateFederating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingDeviceCode:
		return "awaiting_device_code"
	case StateAwaitingAuthorization:
		return "awaiting_authorization"
	case StateAuthorized:
		return "authorized"
	case StateFetchingAccount:
		return "fetching_account"
	case StateFederating:
		return "federating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Flow drives one device authorization attempt end to end: device code
// issuance, the poll loop, the signed account-info fetch, and the
// federation step. A Flow is single-use and strictly sequential; there is
// never more than one request in flight.
type Flow struct {
	provider  Provider
	fetcher   IdentityFetcher
	federator Federator

	// DeviceID correlates code issuance with token exchange. Generated
	// once per run when left empty.
	DeviceID string

	// OnPrompt is called once with the URL the user must open and the
	// code they must confirm there.
	OnPrompt func(verificationURL, userCode string)

	// OnPoll is called after every non-terminal poll with PollPending or
	// PollSlowDown.
	OnPoll func(state PollState)

	state State
	sleep func(time.Duration)
}

// NewFlow builds a Flow over a provider, an identity fetcher and a
// federator. The provider usually implements the fetcher too.
func NewFlow(provider Provider, fetcher IdentityFetcher, federator Federator) *Flow {
	return &Flow{
		provider:  provider,
		fetcher:   fetcher,
		federator: federator,
		state:     StateInit,
		sleep:     time.Sleep,
	}
}

// State reports the flow's current lifecycle state.
func (f *Flow) State() State {
	return f.state
}

// Run executes the full chain and returns the obtained credential. Any
// terminal error leaves the flow in StateFailed; there is no partial
// success. The poll loop is unbounded on the client side: it ends when
// the provider returns a credential or a hard error (the provider expires
// stale device codes itself).
func (f *Flow) Run() (Credential, error) {
	if f.DeviceID == "" {
		f.DeviceID = uuid.NewString()
	}
	log.WithField("device_id", f.DeviceID).Debug("starting device authorization")

	f.state = StateAwaitingDeviceCode
	grant, err := f.provider.RequestGrant(f.DeviceID)
	if err != nil {
		return nil, f.fail(err)
	}

	f.state = StateAwaitingAuthorization
	if f.OnPrompt != nil {
		f.OnPrompt(BuildVerificationURL(grant), grant.UserCode())
	}

	cred, err := f.poll(grant)
	if err != nil {
		return nil, f.fail(err)
	}

	f.state = StateAuthorized
	log.WithField("kid", cred.KeyID()).Debug("token acquired")

	f.state = StateFetchingAccount
	ident, err := f.fetcher.FetchIdentity(cred)
	if err != nil {
		return nil, f.fail(err)
	}
	log.WithField("openid", ident.OpenID()).Debug("account info fetched")

	f.state = StateFederating
	if err := f.federator.RegisterOrLogin(ident, cred); err != nil {
		return nil, f.fail(err)
	}

	f.state = StateDone
	return cred, nil
}

func (f *Flow) poll(grant Grant) (Credential, error) {
	interval := grant.Interval()
	for {
		res := f.provider.PollOnce(grant.DeviceCode(), f.DeviceID)
		switch res.State {
		case PollAuthorized:
			return res.Credential, nil
		case PollPending:
			if f.OnPoll != nil {
				f.OnPoll(PollPending)
			}
			f.sleep(interval)
		case PollSlowDown:
			if f.OnPoll != nil {
				f.OnPoll(PollSlowDown)
			}
			f.sleep(interval + 2*time.Second)
		default:
			return nil, res.Err
		}
	}
}

func (f *Flow) fail(err error) error {
	f.state = StateFailed
	log.WithError(err).Debug("flow failed")
	return err
}

// BuildVerificationURL assembles the URL surfaced to the user: the
// grant's verification URL with the user code appended unless already
// present, plus a qrcode=1 hint.
func BuildVerificationURL(grant Grant) string {
	full := grant.VerificationURL()
	if !strings.Contains(full, "?") {
		full += "?"
	} else if !strings.HasSuffix(full, "?") && !strings.HasSuffix(full, "&") {
		full += "&"
	}

	var params []string
	if !strings.Contains(full, "user_code=") {
		params = append(params, "user_code="+url.QueryEscape(grant.UserCode()))
	}
	params = append(params, "qrcode=1")

	return full + strings.Join(params, "&")
}
