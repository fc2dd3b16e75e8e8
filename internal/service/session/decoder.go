package session

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nkiryanov/storefront/internal/models"
)

const defaultSigningMethod = "HS256"

type accessTokenClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
}

// Decoder config with sensible default
type DecoderConfig struct {
	// Key to verify access token signature
	// If empty the token is decoded without signature check: the commerce API stays the authority
	VerifyKey string

	// JWT MAC algorithm
	// If not set than default is used
	Alg string
}

// Decoder reads claims of access tokens issued by the commerce API.
// Expiry is not checked here: the session compares it with its own clock.
type Decoder struct {
	key    []byte
	alg    jwt.SigningMethod
	parser *jwt.Parser
}

func NewDecoder(cfg DecoderConfig) *Decoder {
	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	d := &Decoder{alg: jwt.GetSigningMethod(cfg.Alg)}
	if cfg.VerifyKey != "" {
		d.key = []byte(cfg.VerifyKey)
	}
	d.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{d.alg.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	return d
}

func (d *Decoder) Decode(access string) (models.AccessClaims, error) {
	var out models.AccessClaims
	if access == "" {
		return out, errors.New("access token is empty")
	}

	claims := &accessTokenClaims{}
	var err error
	if d.key == nil {
		_, _, err = d.parser.ParseUnverified(access, claims)
	} else {
		_, err = d.parser.ParseWithClaims(access, claims, func(*jwt.Token) (any, error) {
			return d.key, nil
		})
	}
	if err != nil {
		return out, fmt.Errorf("error while decoding access token. Err: %w", err)
	}

	if claims.ExpiresAt == nil {
		return out, errors.New("access token has no expiry")
	}

	return models.AccessClaims{
		Subject:   claims.Subject,
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
