// Package botauth verifies signed payloads from the Telegram bot and
// issues the JWT tokens the HTTP API hands out.
package botauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrBadSignature = errors.New("bot payload signature mismatch")
	ErrBadToken     = errors.New("token is invalid or expired")
)

const (
	sessionTokenTTL = 30 * time.Minute
	tempTokenTTL    = 15 * time.Minute
)

// Authenticator signs and verifies tokens. jwtSecret signs the API's own
// tokens, botSecret checks payloads forwarded by the Telegram bot.
type Authenticator struct {
	jwtSecret []byte
	botSecret []byte
}

func New(jwtSecret, botToken string) *Authenticator {
	return &Authenticator{
		jwtSecret: []byte(jwtSecret),
		botSecret: []byte(botToken),
	}
}

// VerifyBotPayload decodes a base64url token produced by the bot: a
// query-style "k=v&k=v&hash=<hex>" string where hash is HMAC-SHA256 over
// the remaining pairs, keyed with the bot secret. Returns the decoded
// fields without the hash.
func (a *Authenticator) VerifyBotPayload(token string) (map[string]string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("failed to decode bot payload: %w", err)
	}

	fields := make(map[string]string)
	for _, item := range strings.Split(string(raw), "&") {
		k, v, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("malformed bot payload item %q", item)
		}
		fields[k] = v
	}

	gotHash, ok := fields["hash"]
	if !ok {
		return nil, errors.New("bot payload has no hash field")
	}
	delete(fields, "hash")

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}

	mac := hmac.New(sha256.New, a.botSecret)
	mac.Write([]byte(strings.Join(pairs, "&")))
	want := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(want), []byte(gotHash)) {
		return nil, ErrBadSignature
	}
	return fields, nil
}

// CreateSessionToken issues the operator's login token.
func (a *Authenticator) CreateSessionToken(username string) (string, error) {
	return a.sign(jwt.MapClaims{"sub": username}, sessionTokenTTL)
}

// CreateTempToken issues a short-lived token carrying redirect state
// between the expenses endpoints.
func (a *Authenticator) CreateTempToken(claims map[string]any) (string, error) {
	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	return a.sign(mc, tempTokenTTL)
}

func (a *Authenticator) sign(claims jwt.MapClaims, ttl time.Duration) (string, error) {
	claims["exp"] = jwt.NewNumericDate(time.Now().Add(ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies a token issued by this service and returns its claims.
func (a *Authenticator) Decode(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrBadToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrBadToken
	}
	return claims, nil
}
