package probe

import (
	"fmt"
	"time"

	apperrors "github.com/NomadCrew/release-gate/errors"
	"github.com/golang-jwt/jwt/v5"
)

// InspectToken reads the expiry of the configured bearer token without
// verifying its signature; the tool holds no signing keys and only needs to
// know whether the credential is usable. An absent or malformed token is a
// missing precondition, not a failure of the deployment under test.
func InspectToken(token string) (time.Time, error) {
	if token == "" {
		return time.Time{}, apperrors.NewConfigurationMissing("target bearer token")
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		appErr := apperrors.NewConfigurationMissing("target bearer token is not a valid JWT")
		appErr.Detail = err.Error()
		appErr.Raw = err
		return time.Time{}, appErr
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, apperrors.NewConfigurationMissing("target bearer token has no expiry claim")
	}

	if exp.Before(time.Now()) {
		appErr := apperrors.NewConfigurationMissing("target bearer token is expired")
		appErr.Detail = fmt.Sprintf("expired at %s", exp.UTC().Format(time.RFC3339))
		return exp.Time, appErr
	}

	return exp.Time, nil
}
