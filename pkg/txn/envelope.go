// Package txn signs and verifies transaction envelopes. An envelope is a compact EdDSA JWS
// whose issuer is the signer's hex public key; the node trusts the issuer only after the
// signature checks out against that same key.
package txn

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/research-protocol/researchx/pkg/research"
)

const (
	InstructionCreateRequest     = "create_request"
	InstructionCommitMethodology = "commit_methodology"
	InstructionSubmitReport      = "submit_report"
	InstructionVerifyReport      = "verify_report"
)

// DefaultMaxTTL bounds how far in the future an envelope may expire.
const DefaultMaxTTL = 5 * time.Minute

var (
	ErrInvalidEnvelope    = errors.New("invalid transaction envelope")
	ErrUnknownInstruction = errors.New("unknown instruction")
	// ErrInvalidArgs marks a correctly signed envelope whose args do not decode.
	ErrInvalidArgs = errors.New("invalid instruction args")
)

// Claims is the JWS payload.
type Claims struct {
	jwt.RegisteredClaims
	Instruction string          `json:"ix"`
	Args        json.RawMessage `json:"args"`
}

type Keypair struct {
	priv ed25519.PrivateKey
}

func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromSeedHex loads a keypair from a 32-byte hex seed.
func KeypairFromSeedHex(s string) (*Keypair, error) {
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

func (k *Keypair) Pubkey() research.Pubkey {
	var pk research.Pubkey
	copy(pk[:], k.priv.Public().(ed25519.PublicKey))
	return pk
}

func (k *Keypair) SeedHex() string { return hex.EncodeToString(k.priv.Seed()) }

// Sign builds an envelope for instruction with args, valid for ttl.
func Sign(k *Keypair, instruction string, args any, ttl time.Duration) (string, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode args: %w", err)
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    k.Pubkey().String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Instruction: instruction,
		Args:        raw,
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(k.priv)
}

// Signed is a verified envelope.
type Signed struct {
	ID          string
	Signer      research.Pubkey
	Instruction string
	Args        json.RawMessage
	ExpiresAt   time.Time
}

// DecodeArgs unmarshals the instruction arguments, rejecting unknown fields.
func (s *Signed) DecodeArgs(v any) error {
	if err := strictUnmarshal(s.Args, v); err != nil {
		return fmt.Errorf("%w: args for %s: %v", ErrInvalidArgs, s.Instruction, err)
	}
	return nil
}

// Verify checks the signature against the issuer key, the expiry and the TTL bound.
func Verify(token string, maxTTL time.Duration) (*Signed, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		c, ok := t.Claims.(*Claims)
		if !ok {
			return nil, errors.New("unexpected claims type")
		}
		signer, err := research.ParsePubkey(c.Issuer)
		if err != nil {
			return nil, fmt.Errorf("issuer: %w", err)
		}
		return ed25519.PublicKey(signer[:]), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing iat", ErrInvalidEnvelope)
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); maxTTL > 0 && ttl > maxTTL {
		return nil, fmt.Errorf("%w: ttl %s exceeds %s", ErrInvalidEnvelope, ttl, maxTTL)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidEnvelope)
	}

	signer, _ := research.ParsePubkey(claims.Issuer)
	return &Signed{
		ID:          claims.ID,
		Signer:      signer,
		Instruction: claims.Instruction,
		Args:        claims.Args,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}
