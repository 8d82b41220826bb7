package twilio

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // Twilio signs webhooks with HMAC-SHA1.
	"encoding/base64"
	"net/url"
	"sort"
	"strings"

	"github.com/twilio/twilio-go/client"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "X-Twilio-Signature"

// Validator checks inbound webhook signatures against the account auth
// token. It implements pipeline.SignatureValidator.
type Validator struct {
	authToken string
	rv        client.RequestValidator
}

// NewValidator creates a validator for the given auth token.
func NewValidator(authToken string) *Validator {
	return &Validator{authToken: authToken, rv: client.NewRequestValidator(authToken)}
}

// Validate reports whether signature matches the request URL and POST
// parameters. An empty token or signature never validates.
func (v *Validator) Validate(fullURL string, params url.Values, signature string) bool {
	if v.authToken == "" || signature == "" {
		return false
	}
	flat := make(map[string]string, len(params))
	for name := range params {
		flat[name] = params.Get(name)
	}
	for _, candidate := range urlVariants(fullURL) {
		if v.rv.Validate(candidate, flat, signature) {
			return true
		}
	}
	return false
}

// Sign computes the signature Twilio would send: base64(HMAC-SHA1(token,
// url + each parameter name and value, sorted by name)). The SDK only
// verifies, so the sign subcommand needs this to produce test requests.
func Sign(authToken, fullURL string, params url.Values) string {
	var sb strings.Builder
	sb.WriteString(fullURL)

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		values := append([]string(nil), params[name]...)
		sort.Strings(values)
		for _, v := range values {
			sb.WriteString(name)
			sb.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// urlVariants returns the URL as given plus the form with the default port
// added or removed, since Twilio may sign either depending on how the
// webhook URL was configured.
func urlVariants(raw string) []string {
	variants := []string{raw}
	u, err := url.Parse(raw)
	if err != nil {
		return variants
	}

	defaultPort := map[string]string{"https": "443", "http": "80"}[u.Scheme]
	if defaultPort == "" {
		return variants
	}

	alt := *u
	if u.Port() == "" {
		alt.Host = u.Host + ":" + defaultPort
	} else if u.Port() == defaultPort {
		alt.Host = u.Hostname()
	} else {
		return variants
	}
	return append(variants, alt.String())
}
