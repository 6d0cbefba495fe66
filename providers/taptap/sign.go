package taptap

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"math/rand"
	"time"
)

// Authorization computes the MAC authorization header value for one
// request. A fresh timestamp and nonce are generated per call; a
// (ts, nonce) pair must never be reused against the same key. Nonces are
// uniform random uint32 values with no collision tracking.
func Authorization(kid, secret, method, path, host string, port int) string {
	return authorization(kid, secret, method, path, host, port, time.Now().Unix(), rand.Uint32())
}

func authorization(kid, secret, method, path, host string, port int, ts int64, nonce uint32) string {
	mac := digest(secret, method, path, host, port, ts, nonce)
	return fmt.Sprintf(`MAC id="%s",ts="%d",nonce="%d",mac="%s"`, kid, ts, nonce, mac)
}

func digest(secret, method, path, host string, port int, ts int64, nonce uint32) string {
	h := hmac.New(sha1.New, []byte(secret))
	h.Write([]byte(signingString(ts, nonce, method, path, host, port)))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// signingString builds the canonical string covered by the MAC. The field
// order and the trailing blank line are part of the wire contract.
func signingString(ts int64, nonce uint32, method, path, host string, port int) string {
	return fmt.Sprintf("%d\n%d\n%s\n%s\n%s\n%d\n\n", ts, nonce, method, path, host, port)
}
