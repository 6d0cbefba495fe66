package taptap

// Defaults matching the production TapTap endpoints. Every value is fixed
// per deployment; nothing here is negotiated at runtime.
const (
	DefaultDeviceCodeURL  = "https://www.taptap.com/oauth2/v1/device/code"
	DefaultTokenURL       = "https://www.taptap.cn/oauth2/v1/token"
	DefaultAccountInfoURL = "https://open.tapapis.cn/account/basic-info/v1"

	// DefaultUserAgent is part of the provider's fingerprinting contract
	// and must match the SDK being emulated.
	DefaultUserAgent = "TapTapAndroidSDK/3.16.5"

	DefaultScope    = "basic_info"
	DefaultPlatform = "unity"

	// The device-code and token endpoints expect different protocol
	// versions.
	DefaultDeviceCodeVersion = "1.2.0"
	DefaultTokenVersion      = "1.0"

	macAlgorithm = "hmac-sha-1"
	grantType    = "device_token"
)

// Config holds the fixed parameters of one TapTap client deployment. The
// zero value of every field except ClientID falls back to the production
// default; a Config is never mutated after New.
type Config struct {
	// ClientID identifies the emulated application. Required.
	ClientID string

	DeviceCodeURL  string
	TokenURL       string
	AccountInfoURL string

	UserAgent string
	Scope     string
	Platform  string

	DeviceCodeVersion string
	TokenVersion      string
}

func (c Config) withDefaults() Config {
	if c.DeviceCodeURL == "" {
		c.DeviceCodeURL = DefaultDeviceCodeURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.AccountInfoURL == "" {
		c.AccountInfoURL = DefaultAccountInfoURL
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Scope == "" {
		c.Scope = DefaultScope
	}
	if c.Platform == "" {
		c.Platform = DefaultPlatform
	}
	if c.DeviceCodeVersion == "" {
		c.DeviceCodeVersion = DefaultDeviceCodeVersion
	}
	if c.TokenVersion == "" {
		c.TokenVersion = DefaultTokenVersion
	}
	return c
}
