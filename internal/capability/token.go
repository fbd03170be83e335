package capability

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/gigmarket/internal/domain"
)

// MinSecretLength is the shortest signing secret accepted.
const MinSecretLength = 32

var (
	ErrMalformed        = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
	ErrWeakSecret       = fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
)

var encoding = base64.RawURLEncoding.Strict()

// Claims is the signed assertion carried by a token.
type Claims struct {
	SubjectUserID int64       `json:"subjectUserId"`
	EntityID      string      `json:"entityId"`
	Role          domain.Role `json:"role"`
	ExpiresAt     int64       `json:"expiresAt"` // Unix milliseconds
}

func (c Claims) Expiry() time.Time {
	return time.UnixMilli(c.ExpiresAt)
}

// Signer issues and verifies tokens with one symmetric secret.
type Signer struct {
	secret []byte
	clock  clockwork.Clock
}

func NewSigner(secret string, clock clockwork.Clock) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	return &Signer{secret: []byte(secret), clock: clock}, nil
}

// Issue signs claims for subject on entityID, valid for ttl from now.
func (s *Signer) Issue(subjectUserID int64, entityID string, role domain.Role, ttl time.Duration) (string, Claims, error) {
	if !role.Valid() {
		return "", Claims{}, fmt.Errorf("issue token: %w: %q", domain.ErrInvalidRole, role)
	}
	if entityID == "" {
		return "", Claims{}, errors.New("issue token: empty entity id")
	}
	if ttl <= 0 {
		return "", Claims{}, fmt.Errorf("issue token: non-positive ttl %v", ttl)
	}

	claims := Claims{
		SubjectUserID: subjectUserID,
		EntityID:      entityID,
		Role:          role,
		ExpiresAt:     s.clock.Now().Add(ttl).UnixMilli(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", Claims{}, fmt.Errorf("issue token: %w", err)
	}

	head := encoding.EncodeToString(payload)
	return head + "." + encoding.EncodeToString(s.sign(head)), claims, nil
}

// Verify checks the signature first and the expiry second. A token is valid
// up to and including its expiresAt instant.
func (s *Signer) Verify(token string) (Claims, error) {
	head, sig, ok := strings.Cut(token, ".")
	if !ok || head == "" || sig == "" || strings.Contains(sig, ".") {
		return Claims{}, ErrMalformed
	}

	gotSig, err := encoding.DecodeString(sig)
	if err != nil {
		return Claims{}, ErrMalformed
	}
	if !hmac.Equal(gotSig, s.sign(head)) {
		return Claims{}, ErrInvalidSignature
	}

	payload, err := encoding.DecodeString(head)
	if err != nil {
		return Claims{}, ErrMalformed
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, ErrMalformed
	}
	if !claims.Role.Valid() || claims.EntityID == "" || claims.ExpiresAt == 0 {
		return Claims{}, ErrMalformed
	}

	if s.clock.Now().UnixMilli() > claims.ExpiresAt {
		return claims, ErrExpired
	}

	return claims, nil
}

func (s *Signer) sign(head string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(head))
	return mac.Sum(nil)
}
