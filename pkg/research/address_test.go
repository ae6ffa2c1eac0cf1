package research_test

import (
	"testing"

	"filippo.io/edwards25519"
	"github.com/research-protocol/researchx/pkg/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindProgramAddress_Deterministic(t *testing.T) {
	program := research.DefaultProgramID
	requester := identity("alice")

	a1, b1, err := research.RequestAddress(program, requester, "AI safety")
	require.NoError(t, err)
	a2, b2, err := research.RequestAddress(program, requester, "AI safety")
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
}

func TestFindProgramAddress_OffCurveAndBumpReproducible(t *testing.T) {
	program := research.DefaultProgramID
	req := identity("req")
	seeds := [][]byte{[]byte("report"), req[:]}

	addr, bump, err := research.FindProgramAddress(seeds, program)
	require.NoError(t, err)

	_, perr := new(edwards25519.Point).SetBytes(addr[:])
	assert.Error(t, perr, "derived address must not be a valid curve point")

	again, ok := research.CreateProgramAddress(append(seeds, []byte{bump}), program)
	require.True(t, ok)
	assert.Equal(t, addr, again)

	// Every bump above the chosen one lands on the curve.
	for b := 255; b > int(bump); b-- {
		_, ok := research.CreateProgramAddress(append(seeds, []byte{byte(b)}), program)
		assert.False(t, ok, "bump %d", b)
	}
}

func TestAddresses_DistinctSeeds(t *testing.T) {
	program := research.DefaultProgramID
	alice, bob := identity("alice"), identity("bob")

	seen := map[research.Pubkey]string{}
	record := func(name string, addr research.Pubkey, err error) {
		require.NoError(t, err)
		prev, dup := seen[addr]
		require.False(t, dup, "%s collides with %s", name, prev)
		seen[addr] = name
	}

	a, _, err := research.RequestAddress(program, alice, "topic")
	record("alice/topic", a, err)
	a, _, err = research.RequestAddress(program, alice, "topic2")
	record("alice/topic2", a, err)
	a, _, err = research.RequestAddress(program, bob, "topic")
	record("bob/topic", a, err)
	a, _, err = research.ReportAddress(program, alice)
	record("report/alice", a, err)
	a, _, err = research.VerificationAddress(program, alice, bob)
	record("verification/alice/bob", a, err)
	a, _, err = research.VerificationAddress(program, bob, alice)
	record("verification/bob/alice", a, err)

	other := identity("another-program")
	a, _, err = research.RequestAddress(other, alice, "topic")
	record("other-program/alice/topic", a, err)
}

func TestAddresses_LongTopic(t *testing.T) {
	topic := make([]byte, research.MaxTopicLen)
	for i := range topic {
		topic[i] = 'q'
	}
	_, _, err := research.RequestAddress(research.DefaultProgramID, identity("alice"), string(topic))
	assert.NoError(t, err)
}

func TestPubkey_TextRoundTrip(t *testing.T) {
	k := identity("alice")
	text, err := k.MarshalText()
	require.NoError(t, err)
	assert.Len(t, text, 64)

	parsed, err := research.ParsePubkey(string(text))
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	_, err = research.ParsePubkey("abc")
	assert.Error(t, err)
	_, err = research.ParseHash(string(make([]byte, 64)))
	assert.Error(t, err)
}
