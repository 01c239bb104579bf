package models

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/pbkdf2"
)

// UniPayment environments.
const (
	UniPaymentEnvSandbox    = "sandbox"
	UniPaymentEnvProduction = "production"
)

const settingKeyIterations = 10_000

var settingKeySalt = []byte("leadership-summit.unipayment.v1")

// ErrNoAppKey is returned when credential encryption is attempted without a
// configured application key.
var ErrNoAppKey = errors.New("APP_KEY is not configured")

// UniPaymentSetting holds the provider credentials and webhook configuration.
// Exactly one row is flagged current; the API secret is stored encrypted and
// decrypted only on read.
type UniPaymentSetting struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	AppID             string     `gorm:"size:191;not null" json:"app_id" validate:"required"`
	APIKeyEnc         string     `gorm:"column:api_key_enc;type:text;not null" json:"-"`
	Environment       string     `gorm:"size:20;not null;default:'sandbox'" json:"environment" validate:"required,oneof=sandbox production"`
	WebhookSecret     string     `gorm:"size:255;not null;default:''" json:"-"`
	Enabled           bool       `gorm:"default:false" json:"enabled"`
	DemoMode          bool       `gorm:"default:false" json:"demo_mode"`
	Currency          string     `gorm:"size:3;not null;default:'USD'" json:"currency" validate:"required,len=3"`
	MinAmount         float64    `gorm:"type:decimal(10,2);not null;default:0.01" json:"min_amount" validate:"gt=0"`
	MaxAmount         float64    `gorm:"type:decimal(10,2);not null;default:10000" json:"max_amount" validate:"gtefield=MinAmount"`
	IsCurrent         bool       `gorm:"default:false;index" json:"is_current"`
	LastWebhookTestAt *time.Time `json:"last_webhook_test_at,omitempty"`
	LastWebhookTestOK bool       `gorm:"default:false" json:"last_webhook_test_ok"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName specifies the table name for UniPaymentSetting
func (UniPaymentSetting) TableName() string {
	return "unipayment_settings"
}

// Validate validates the setting fields.
func (s *UniPaymentSetting) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}

// SetAPIKey encrypts and stores the provider API secret.
func (s *UniPaymentSetting) SetAPIKey(plaintext, appKey string) error {
	enc, err := encryptSecret(plaintext, appKey)
	if err != nil {
		return err
	}
	s.APIKeyEnc = enc
	return nil
}

// APIKey decrypts the stored provider API secret.
func (s *UniPaymentSetting) APIKey(appKey string) (string, error) {
	return decryptSecret(s.APIKeyEnc, appKey)
}

// deriveSettingKey stretches the application key into an AES-256 key.
func deriveSettingKey(appKey string) []byte {
	return pbkdf2.Key([]byte(appKey), settingKeySalt, settingKeyIterations, 32, sha256.New)
}

func encryptSecret(plaintext, appKey string) (string, error) {
	if appKey == "" {
		return "", ErrNoAppKey
	}
	block, err := aes.NewCipher(deriveSettingKey(appKey))
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
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func decryptSecret(encoded, appKey string) (string, error) {
	if appKey == "" {
		return "", ErrNoAppKey
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.New("stored credential is not valid base64")
	}
	block, err := aes.NewCipher(deriveSettingKey(appKey))
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("stored credential is truncated")
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errors.New("stored credential could not be decrypted")
	}
	return string(plain), nil
}
