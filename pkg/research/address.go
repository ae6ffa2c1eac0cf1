package research

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"
)

const pdaMarker = "ProgramDerivedAddress"

var (
	requestSeed      = []byte("request")
	reportSeed       = []byte("report")
	verificationSeed = []byte("verification")
)

// ErrNoViableBump is returned when every bump seed lands on the ed25519 curve.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// DefaultProgramID identifies the program when PROGRAM_ID is not configured.
var DefaultProgramID = Pubkey(sha256.Sum256([]byte("research-protocol")))

// CreateProgramAddress hashes seeds, the program id and a marker. Digests that decode to a
// valid ed25519 point are rejected so a derived address never has a private key.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, bool) {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var addr Pubkey
	copy(addr[:], h.Sum(nil))
	if isOnCurve(addr) {
		return Pubkey{}, false
	}
	return addr, true
}

// FindProgramAddress searches bump seeds from 255 downwards and returns the first off-curve
// address together with the bump that produced it.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		if addr, ok := CreateProgramAddress(withBump, programID); ok {
			return addr, uint8(bump), nil
		}
	}
	return Pubkey{}, 0, ErrNoViableBump
}

func isOnCurve(b Pubkey) bool {
	_, err := new(edwards25519.Point).SetBytes(b[:])
	return err == nil
}

// RequestAddress locates the request owned by requester for topic.
func RequestAddress(programID, requester Pubkey, topic string) (Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{requestSeed, requester[:], []byte(topic)}, programID)
}

// ReportAddress locates the single report of a request.
func ReportAddress(programID, request Pubkey) (Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{reportSeed, request[:]}, programID)
}

// VerificationAddress locates the attestation of verifier on report.
func VerificationAddress(programID, report, verifier Pubkey) (Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{verificationSeed, report[:], verifier[:]}, programID)
}
