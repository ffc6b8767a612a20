package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"ms-eventreg/internal/models"
	"ms-eventreg/internal/utils"
)

// PayloadTTL is how long a minted QR payload stays valid.
const PayloadTTL = 30 * 24 * time.Hour

// ErrDecode is returned for any tamper, corruption or key mismatch. The
// codec never returns partially decoded data.
var ErrDecode = errors.New("qr payload decode failed")

// Codec mints and validates the opaque encrypted QR strings. Payloads are
// JSON, signed with an HMAC bound to the stored issue date, then sealed with
// AES-256-GCM under a key scoped to ticket QR use only.
type Codec struct {
	key    []byte
	secret []byte
	now    func() time.Time
}

func NewCodec(secret string) *Codec {
	scoped := sha256.Sum256([]byte("ticket-qr:" + secret))
	return &Codec{
		key:    scoped[:],
		secret: []byte(secret),
		now:    time.Now,
	}
}

// NewCodecWithClock is for tests that need to control issue time.
func NewCodecWithClock(secret string, clock func() time.Time) *Codec {
	c := NewCodec(secret)
	c.now = clock
	return c
}

// MintPayload builds, signs and seals a ticket payload. The signature is
// derived from the issue date stored inside the payload, so validation gives
// the same answer on any later calendar day within the TTL.
func (c *Codec) MintPayload(registrationID, ticketTypeID, attendeeEmail string) (string, error) {
	issued := c.now().UTC()
	payload := models.TicketPayload{
		RegistrationID: registrationID,
		TicketTypeID:   ticketTypeID,
		AttendeeEmail:  attendeeEmail,
		IssuedAt:       issued,
		ExpiresAt:      issued.Add(PayloadTTL),
	}
	payload.Signature = c.sign(registrationID, ticketTypeID, attendeeEmail, issued)

	return c.seal(payload)
}

// ExtractPayload decrypts and deserializes an opaque QR string.
func (c *Codec) ExtractPayload(opaque string) (*models.TicketPayload, error) {
	raw, err := base64.URLEncoding.DecodeString(opaque)
	if err != nil {
		return nil, ErrDecode
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, ErrDecode
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrDecode
	}
	if len(raw) < gcm.NonceSize() {
		return nil, ErrDecode
	}

	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecode
	}

	var payload models.TicketPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return nil, ErrDecode
	}
	return &payload, nil
}

// Validate fails closed: any decode failure, expiry or signature mismatch is
// false. It touches no store; the check-in state machine performs the
// store-aware half of validation.
func (c *Codec) Validate(opaque string) bool {
	payload, err := c.ExtractPayload(opaque)
	if err != nil {
		return false
	}
	if c.now().After(payload.ExpiresAt) {
		return false
	}
	expected := c.sign(payload.RegistrationID, payload.TicketTypeID, payload.AttendeeEmail, payload.IssuedAt)
	return hmac.Equal([]byte(expected), []byte(payload.Signature))
}

func (c *Codec) sign(registrationID, ticketTypeID, attendeeEmail string, issuedAt time.Time) string {
	mac := hmac.New(sha256.New, c.secret)
	io.WriteString(mac, registrationID)
	io.WriteString(mac, "|")
	io.WriteString(mac, ticketTypeID)
	io.WriteString(mac, "|")
	io.WriteString(mac, strings.ToLower(attendeeEmail))
	io.WriteString(mac, "|")
	io.WriteString(mac, utils.DateComponent(issuedAt))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Codec) seal(payload models.TicketPayload) (string, error) {
	plain, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, plain, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}
