package txn

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/research-protocol/researchx/pkg/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeed = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func TestKeypairFromSeedHex(t *testing.T) {
	kp, err := KeypairFromSeedHex(testSeed)
	require.NoError(t, err)
	// RFC 8032 test vector 1
	assert.Equal(t, "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a", kp.Pubkey().String())
	assert.Equal(t, testSeed, kp.SeedHex())

	_, err = KeypairFromSeedHex("abcd")
	assert.Error(t, err)
	_, err = KeypairFromSeedHex("zz")
	assert.Error(t, err)
}

func TestSignVerify(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	args := SubmitReportArgs{
		Request:      research.Pubkey{1},
		ReportHash:   research.Hash{2},
		SourceHashes: []research.Hash{{3}, {4}},
		ArweaveTx:    "tx123",
	}
	token, err := Sign(kp, InstructionSubmitReport, args, time.Minute)
	require.NoError(t, err)

	signed, err := Verify(token, DefaultMaxTTL)
	require.NoError(t, err)
	assert.Equal(t, kp.Pubkey(), signed.Signer)
	assert.Equal(t, InstructionSubmitReport, signed.Instruction)
	assert.NotEmpty(t, signed.ID)

	var decoded SubmitReportArgs
	require.NoError(t, signed.DecodeArgs(&decoded))
	assert.Equal(t, args, decoded)
}

func TestVerify_Tampered(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	token, err := Sign(kp, InstructionCreateRequest, CreateRequestArgs{Topic: "a", Deadline: 1}, time.Minute)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	other, err := Sign(kp, InstructionCreateRequest, CreateRequestArgs{Topic: "b", Deadline: 1}, time.Minute)
	require.NoError(t, err)
	forged := strings.Split(other, ".")[1]

	_, err = Verify(parts[0]+"."+forged+"."+parts[2], DefaultMaxTTL)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestVerify_IssuerMustMatchKey(t *testing.T) {
	signer, err := GenerateKeypair()
	require.NoError(t, err)
	victim, err := GenerateKeypair()
	require.NoError(t, err)

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    victim.Pubkey().String(),
			ID:        "x",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		Instruction: InstructionVerifyReport,
		Args:        []byte(`{}`),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(signer.priv)
	require.NoError(t, err)

	_, err = Verify(token, DefaultMaxTTL)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    research.Pubkey{1}.String(),
			ID:        "x",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = Verify(token, DefaultMaxTTL)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestVerify_ExpiryAndTTL(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	expired, err := Sign(kp, InstructionCreateRequest, CreateRequestArgs{}, -time.Minute)
	require.NoError(t, err)
	_, err = Verify(expired, DefaultMaxTTL)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	long, err := Sign(kp, InstructionCreateRequest, CreateRequestArgs{}, time.Hour)
	require.NoError(t, err)
	_, err = Verify(long, DefaultMaxTTL)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	_, err = Verify(long, 0)
	assert.NoError(t, err, "zero max ttl disables the bound")
}

func TestDecodeArgs_UnknownField(t *testing.T) {
	s := &Signed{Instruction: InstructionCreateRequest, Args: []byte(`{"topic":"a","bogus":1}`)}
	var args CreateRequestArgs
	err := s.DecodeArgs(&args)
	assert.ErrorIs(t, err, ErrInvalidArgs)
	assert.NotErrorIs(t, err, ErrInvalidEnvelope)
}

func TestKnownInstruction(t *testing.T) {
	for _, ix := range []string{InstructionCreateRequest, InstructionCommitMethodology, InstructionSubmitReport, InstructionVerifyReport} {
		assert.True(t, KnownInstruction(ix))
	}
	assert.False(t, KnownInstruction("cancel_request"))
}

func TestReplayGuard(t *testing.T) {
	g := NewReplayGuard()
	base := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return base }

	first := &Signed{ID: "a", ExpiresAt: base.Add(time.Minute)}
	require.NoError(t, g.Check(first))
	assert.ErrorIs(t, g.Check(first), ErrReplayed)

	require.NoError(t, g.Check(&Signed{ID: "b", ExpiresAt: base.Add(-time.Second)}))
	assert.Equal(t, 1, g.Sweep())
	assert.ErrorIs(t, g.Check(first), ErrReplayed)
}
