package taptap

import "fmt"

// TransportError is a non-2xx response from an endpoint. Body carries the
// parsed-or-raw response text for diagnostics.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// ProtocolError is a well-formed device-code response that carries an
// explicit success=false flag, possibly under a 2xx status.
type ProtocolError struct {
	Body string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("device code error: %s", e.Body)
}

// BusinessError is a token exchange rejected by the provider with a
// recognized failure body. Code holds the wire error code when one could
// be extracted.
type BusinessError struct {
	Code string
	Body string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("business error: %s", e.Body)
}

// UnrecognizedError is a token-endpoint response that fits none of the
// known shapes: unparseable JSON or a success flag with unusable data.
type UnrecognizedError struct {
	Body string
}

func (e *UnrecognizedError) Error() string {
	return fmt.Sprintf("unrecognized response: %s", e.Body)
}
