package rest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Credentials are the L2 API credentials issued by the exchange.
type Credentials struct {
	Address    string
	APIKey     string
	Secret     string
	Passphrase string
}

// authHeaders builds the POLY_* header set for an authenticated request.
// message = timestamp + method + path + body, HMAC-SHA256 over the
// base64-decoded secret, signature re-encoded url-safe.
func (c Credentials) authHeaders(method, path string, body []byte) (http.Header, error) {
	ts := time.Now().Unix()
	sig, err := signHMAC(c.Secret, ts, method, path, body)
	if err != nil {
		return nil, err
	}
	h := make(http.Header)
	h.Set("POLY_ADDRESS", c.Address)
	h.Set("POLY_SIGNATURE", sig)
	h.Set("POLY_TIMESTAMP", strconv.FormatInt(ts, 10))
	h.Set("POLY_API_KEY", c.APIKey)
	h.Set("POLY_PASSPHRASE", c.Passphrase)
	return h, nil
}

func signHMAC(secret string, timestamp int64, method, path string, body []byte) (string, error) {
	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(timestamp, 10))
	sb.WriteString(method)
	sb.WriteString(path)
	if body != nil {
		sb.Write(body)
	}

	decoded, err := base64.StdEncoding.DecodeString(normalizeSecret(secret))
	if err != nil {
		return "", fmt.Errorf("decode api secret: %w", err)
	}
	mac := hmac.New(sha256.New, decoded)
	_, _ = mac.Write([]byte(sb.String()))

	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	sig = strings.ReplaceAll(sig, "+", "-")
	sig = strings.ReplaceAll(sig, "/", "_")
	return sig, nil
}

// normalizeSecret accepts url-safe base64 secrets and fixes padding.
func normalizeSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	secret = strings.ReplaceAll(secret, "-", "+")
	secret = strings.ReplaceAll(secret, "_", "/")
	if rem := len(secret) % 4; rem != 0 {
		secret += strings.Repeat("=", 4-rem)
	}
	return secret
}
