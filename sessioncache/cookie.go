package sessioncache

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/jmcleod/masterkeep/internal/uuid"
)

const cookieLabel = "masterkeep:client-cookie:v1"

// NewClientID returns a fresh random client identifier.
func NewClientID() string {
	return uuid.New()
}

func (c *Cache) cookieMAC(clientID string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(cookieLabel))
	mac.Write([]byte{0})
	mac.Write([]byte(clientID))
	return mac.Sum(nil)
}

// SignClientID returns the cookie value for clientID.
func (c *Cache) SignClientID(clientID string) string {
	return clientID + "." + hex.EncodeToString(c.cookieMAC(clientID))
}

// VerifyClientID checks a cookie value produced by SignClientID and returns
// the client id it carries.
func (c *Cache) VerifyClientID(value string) (string, error) {
	i := strings.LastIndexByte(value, '.')
	if i <= 0 {
		return "", ErrInvalidClientID
	}
	clientID, sig := value[:i], value[i+1:]
	got, err := hex.DecodeString(sig)
	if err != nil {
		return "", ErrInvalidClientID
	}
	if !hmac.Equal(got, c.cookieMAC(clientID)) {
		return "", ErrInvalidClientID
	}
	return clientID, nil
}
