package discovery

import (
	"strings"

	"github.com/snowops/discovery-agent/internal/logging"
	"github.com/snowops/discovery-agent/internal/snow"
)

// secretFieldMarkers identify fields that must never leave the normalizer.
// Matching is by substring on the lowercased field name: over-dropping an
// unusual field is acceptable, leaking a secret is not.
var secretFieldMarkers = []string{
	"password",
	"passwd",
	"pwd",
	"private_key",
	"passphrase",
	"secret",
	"api_key",
	"token",
}

var secretsLogger = logging.GetLogger("discovery.secrets")

// IsSecretField reports whether a field name denotes secret material
func IsSecretField(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range secretFieldMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// SanitizeCredentialRecord returns a copy of rec with every secret field
// removed. A non-empty secret value in an API response is a security
// anomaly (the instance should not serve secrets to this integration
// user); it is logged by field name only and dropped all the same.
func SanitizeCredentialRecord(rec snow.Record) snow.Record {
	clean := make(snow.Record, len(rec))
	for k, v := range rec {
		if !IsSecretField(k) {
			clean[k] = v
			continue
		}
		if asString(v) != "" {
			secretsLogger.WarnWithFields("credential record contained a populated secret field, dropped",
				logging.Field("field", k),
			)
		}
	}
	return clean
}
