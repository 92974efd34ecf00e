package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/carscout/models"
)

// callerKey holds the identity of an authenticated caller in the gin context.
// RateLimit buckets by it when present.
const callerKey = "carscout.caller"

// keyDigest is a fixed-length fingerprint of an API key. Comparing digests
// keeps the comparison time independent of the submitted key's length.
type keyDigest [sha256.Size]byte

// Auth guards the search API with static API keys, sent either as
//
//	X-API-Key: <key>
//	Authorization: Bearer <key>
//
// With no usable keys configured every request passes.
func Auth(apiKeys []string) gin.HandlerFunc {
	var digests []keyDigest
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	if len(digests) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key, ok := presentedKey(c.Request)
		if !ok {
			c.Header("WWW-Authenticate", `Bearer realm="carscout"`)
			abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized,
				"missing API key: provide X-API-Key header or Authorization: Bearer <key>")
			return
		}

		d := keyDigest(sha256.Sum256([]byte(key)))
		if !knownKey(digests, d) {
			abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "invalid API key")
			return
		}

		// The raw key never leaves this middleware.
		c.Set(callerKey, "key:"+hex.EncodeToString(d[:6]))
		c.Next()
	}
}

// knownKey scans every digest so the match position is not observable.
func knownKey(digests []keyDigest, d keyDigest) bool {
	found := 0
	for i := range digests {
		found |= subtle.ConstantTimeCompare(digests[i][:], d[:])
	}
	return found == 1
}

// presentedKey prefers X-API-Key and falls back to a bearer token. The
// scheme name is case-insensitive.
func presentedKey(r *http.Request) (string, bool) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, true
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// abort stops the chain with an error body shaped like a search response.
func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.SearchResponse{
		Success:  false,
		Listings: []models.Listing{},
		Error:    &models.ErrorDetail{Code: code, Message: message},
	})
}
