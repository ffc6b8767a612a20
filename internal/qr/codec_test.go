package qr_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"ms-eventreg/internal/qr"
)

func TestMintAndValidateRoundTrip(t *testing.T) {
	codec := qr.NewCodec("test-secret-key")

	regID := uuid.New().String()
	typeID := uuid.New().String()
	opaque, err := codec.MintPayload(regID, typeID, "alice@example.com")
	assert.NoError(t, err)
	assert.NotEmpty(t, opaque)

	assert.True(t, codec.Validate(opaque))

	payload, err := codec.ExtractPayload(opaque)
	assert.NoError(t, err)
	assert.Equal(t, regID, payload.RegistrationID)
	assert.Equal(t, typeID, payload.TicketTypeID)
	assert.Equal(t, "alice@example.com", payload.AttendeeEmail)
	assert.Equal(t, payload.IssuedAt.Add(qr.PayloadTTL), payload.ExpiresAt)
}

func TestValidateSurvivesDayBoundary(t *testing.T) {
	// Minted late at night, validated the next morning. The signature binds
	// to the stored issue date, so this must still pass.
	minted := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	mintCodec := qr.NewCodecWithClock("test-secret-key", func() time.Time { return minted })

	opaque, err := mintCodec.MintPayload("reg-1", "type-1", "bob@example.com")
	assert.NoError(t, err)

	nextDay := minted.Add(8 * time.Hour)
	checkCodec := qr.NewCodecWithClock("test-secret-key", func() time.Time { return nextDay })
	assert.True(t, checkCodec.Validate(opaque))
}

func TestValidateRejectsExpiredPayload(t *testing.T) {
	minted := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	mintCodec := qr.NewCodecWithClock("test-secret-key", func() time.Time { return minted })

	opaque, err := mintCodec.MintPayload("reg-1", "type-1", "bob@example.com")
	assert.NoError(t, err)

	later := minted.Add(qr.PayloadTTL + time.Hour)
	checkCodec := qr.NewCodecWithClock("test-secret-key", func() time.Time { return later })
	assert.False(t, checkCodec.Validate(opaque))
}

func TestTamperedPayloadFailsClosed(t *testing.T) {
	codec := qr.NewCodec("test-secret-key")

	opaque, err := codec.MintPayload("reg-1", "type-1", "carol@example.com")
	assert.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(opaque)
	assert.NoError(t, err)

	// Flip a single byte anywhere in the ciphertext.
	for _, i := range []int{0, len(raw) / 2, len(raw) - 1} {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		mutated[i] ^= 0x01
		tampered := base64.URLEncoding.EncodeToString(mutated)

		assert.False(t, codec.Validate(tampered), "flipped byte %d must invalidate", i)
		_, err = codec.ExtractPayload(tampered)
		assert.ErrorIs(t, err, qr.ErrDecode)
	}
}

func TestWrongKeyCannotDecode(t *testing.T) {
	codec := qr.NewCodec("test-secret-key")
	other := qr.NewCodec("another-secret")

	opaque, err := codec.MintPayload("reg-1", "type-1", "dave@example.com")
	assert.NoError(t, err)

	_, err = other.ExtractPayload(opaque)
	assert.ErrorIs(t, err, qr.ErrDecode)
	assert.False(t, other.Validate(opaque))
}

func TestGarbageInputFailsClosed(t *testing.T) {
	codec := qr.NewCodec("test-secret-key")

	assert.False(t, codec.Validate(""))
	assert.False(t, codec.Validate("not base64 at all!!!"))
	assert.False(t, codec.Validate(base64.URLEncoding.EncodeToString([]byte("short"))))
}
