package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrKeyInvalid indicates that the idempotency key format is invalid
	ErrKeyInvalid = errors.New("invalid idempotency key format")

	// ErrKeyTooLong indicates that the idempotency key exceeds the maximum length
	ErrKeyTooLong = errors.New("idempotency key is too long")
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Record is a stored idempotency key together with the response it produced
type Record struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	Key             string             `bson:"key"`
	ServiceID       string             `bson:"serviceId"`
	RequestPath     string             `bson:"requestPath"`
	RequestMethod   string             `bson:"requestMethod"`
	Fingerprint     string             `bson:"fingerprint"`
	LockToken       string             `bson:"lockToken"`
	LockedAt        time.Time          `bson:"lockedAt"`
	ResponseCode    int                `bson:"responseCode,omitempty"`
	ResponseBody    []byte             `bson:"responseBody,omitempty"`
	ResponseHeaders map[string]string  `bson:"responseHeaders,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt"`
	CompletedAt     *time.Time         `bson:"completedAt,omitempty"`
	ExpiresAt       time.Time          `bson:"expiresAt"`
}

// IsCompleted returns true if a response has been stored
func (r *Record) IsCompleted() bool {
	return r.CompletedAt != nil
}

// ValidateKey checks the key format and length
func ValidateKey(key string, maxLength int) error {
	if len(key) > maxLength {
		return ErrKeyTooLong
	}
	if !keyPattern.MatchString(key) {
		return ErrKeyInvalid
	}
	return nil
}

// NormalizeKey trims surrounding whitespace
func NormalizeKey(key string) string {
	return strings.TrimSpace(key)
}

// Fingerprint hashes the parts of a request a replay must match
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
