package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"

	"github.com/roomiegr/roomie/internal/crypto"
	"github.com/roomiegr/roomie/internal/errs"
)

// OTPConfig tunes one-time phone codes.
type OTPConfig struct {
	Length       int
	TTL          time.Duration
	ResendWindow time.Duration
}

// DefaultOTPConfig is used for zero fields of OTPConfig.
var DefaultOTPConfig = OTPConfig{Length: 6, TTL: 10 * time.Minute, ResendWindow: time.Minute}

// ErrCodeMismatch is returned when a submitted code does not match the pending one.
var ErrCodeMismatch = errors.New("code mismatch")

// OTP keeps pending phone codes in Redis. Only an Argon2id hash of a code is stored.
type OTP struct {
	rdb redis.Cmdable
	cfg OTPConfig
}

// NewOTP constructs the code store.
func NewOTP(rdb redis.Cmdable, cfg OTPConfig) *OTP {
	if cfg.Length <= 0 {
		cfg.Length = DefaultOTPConfig.Length
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultOTPConfig.TTL
	}
	if cfg.ResendWindow <= 0 {
		cfg.ResendWindow = DefaultOTPConfig.ResendWindow
	}
	return &OTP{rdb: rdb, cfg: cfg}
}

// TTL is how long an issued code stays valid.
func (o *OTP) TTL() time.Duration { return o.cfg.TTL }

func codeKey(userID uuid.UUID) string   { return "roomie:otp:" + userID.String() }
func resendKey(userID uuid.UUID) string { return "roomie:otp:res:" + userID.String() }

// Issue creates a new code for the user's phone and returns it in clear text for delivery.
// A second code within the resend window yields errs.ErrRateLimited.
func (o *OTP) Issue(ctx context.Context, userID uuid.UUID, phone string) (string, time.Time, error) {
	ok, err := o.rdb.SetNX(ctx, resendKey(userID), 1, o.cfg.ResendWindow).Result()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("resend window: %w", err)
	}
	if !ok {
		wait, _ := o.rdb.TTL(ctx, resendKey(userID)).Result()
		return "", time.Time{}, fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, wait.Round(time.Second))
	}

	code, err := o.generate()
	if err != nil {
		return "", time.Time{}, err
	}
	salt, err := crypto.RandBytes(16)
	if err != nil {
		return "", time.Time{}, err
	}

	key := codeKey(userID)
	pipe := o.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "phone", phone, "salt", salt, "hash", crypto.HashSecret([]byte(code), salt))
	pipe.Expire(ctx, key, o.cfg.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", time.Time{}, fmt.Errorf("store code: %w", err)
	}
	return code, time.Now().Add(o.cfg.TTL), nil
}

// Check compares a code against the pending one and returns the phone it was issued for.
// A matching code is consumed.
func (o *OTP) Check(ctx context.Context, userID uuid.UUID, code string) (string, error) {
	vals, err := o.rdb.HGetAll(ctx, codeKey(userID)).Result()
	if err != nil {
		return "", fmt.Errorf("load code: %w", err)
	}
	if len(vals) == 0 {
		return "", fmt.Errorf("%w: no pending code", errs.ErrNotFound)
	}
	if !crypto.VerifySecret([]byte(code), []byte(vals["salt"]), []byte(vals["hash"])) {
		return "", ErrCodeMismatch
	}
	if err := o.rdb.Del(ctx, codeKey(userID)).Err(); err != nil {
		return "", fmt.Errorf("consume code: %w", err)
	}
	return vals["phone"], nil
}

// Discard drops a pending code and its resend window.
func (o *OTP) Discard(ctx context.Context, userID uuid.UUID) error {
	return o.rdb.Del(ctx, codeKey(userID), resendKey(userID)).Err()
}

func (o *OTP) generate() (string, error) {
	digits := make([]byte, o.cfg.Length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
