package deviceauth

import "time"

// Provider implements the device authorization grant against a single
// identity provider: issuing a device code and exchanging it for a
// credential once the user has approved on another device.
type Provider interface {
	RequestGrant(deviceID string) (Grant, error)
	PollOnce(deviceCode, deviceID string) PollResult
}

// IdentityFetcher fetches the account identity protected by a credential.
type IdentityFetcher interface {
	FetchIdentity(cred Credential) (Identity, error)
}

// Federator exchanges a third-party identity for a session in an external
// user directory.
type Federator interface {
	RegisterOrLogin(ident Identity, cred Credential) error
}

// Grant is a provider-issued device authorization: the opaque device code
// used for polling plus the user-facing code and verification URL.
type Grant interface {
	DeviceCode() string
	UserCode() string
	VerificationURL() string
	Interval() time.Duration
}

// Credential is the MAC credential obtained from a successful token
// exchange. The mac key never appears on the wire after issuance; it is
// only used to sign subsequent requests.
type Credential interface {
	KeyID() string
	MACKey() string
	MACAlgorithm() string
}

// Identity is the account identity fetched with a Credential.
type Identity interface {
	OpenID() string
	UnionID() string
}

// PollState tags the outcome of a single token exchange attempt.
type PollState int

const (
	// PollPending means the user has not acted yet; poll again after the
	// grant interval.
	PollPending PollState = iota
	// PollSlowDown means the provider wants a longer pause before the
	// next attempt.
	PollSlowDown
	// PollAuthorized means the exchange succeeded and Credential is set.
	PollAuthorized
	// PollFailed means a terminal error; Err is set.
	PollFailed
)

func (s PollState) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollSlowDown:
		return "slow_down"
	case PollAuthorized:
		return "authorized"
	case PollFailed:
		return "failed"
	}
	return "unknown"
}

// PollResult is the tagged outcome of one poll. Exactly one of Credential
// (PollAuthorized) or Err (PollFailed) is set; for PollPending and
// PollSlowDown both are nil.
type PollResult struct {
	State      PollState
	Credential Credential
	Err        error
}
