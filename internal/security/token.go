package security

import "golang.org/x/crypto/bcrypt"

// VerifyAccessToken compares a presented upload token against the configured
// bcrypt hash. An empty configured hash means token checking is disabled at
// the deployment level and everything verifies.
func VerifyAccessToken(configuredHash, presented string) bool {
	if configuredHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(configuredHash), []byte(presented)) == nil
}

// HashAccessToken produces a bcrypt hash suitable for the access token
// config entry. Exposed for provisioning tooling.
func HashAccessToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
