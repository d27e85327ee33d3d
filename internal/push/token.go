// ABOUTME: Push token format validation
// ABOUTME: Accepts Expo-style tokens and rejects everything else with ErrInvalidToken

package push

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidToken is returned for tokens that do not look like Expo push tokens.
var ErrInvalidToken = errors.New("invalid push token")

var tokenPrefixes = []string{"ExponentPushToken[", "ExpoPushToken["}

// ValidateToken checks that token is an Expo push token:
// ExponentPushToken[...] or ExpoPushToken[...] with a non-empty body.
func ValidateToken(token string) error {
	for _, prefix := range tokenPrefixes {
		if strings.HasPrefix(token, prefix) && strings.HasSuffix(token, "]") && len(token) > len(prefix)+1 {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidToken, token)
}
