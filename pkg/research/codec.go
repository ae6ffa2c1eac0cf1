package research

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
)

// Account kinds, also the discriminator preimage names.
const (
	KindRequest      = "ResearchRequest"
	KindReport       = "ResearchReport"
	KindVerification = "Verification"
)

const discriminatorLen = 8

// Discriminator is the 8-byte record tag prefixed to every persisted account.
func Discriminator(kind string) [discriminatorLen]byte {
	sum := sha256.Sum256([]byte("account:" + kind))
	var d [discriminatorLen]byte
	copy(d[:], sum[:discriminatorLen])
	return d
}

var (
	requestDisc      = Discriminator(KindRequest)
	reportDisc       = Discriminator(KindReport)
	verificationDisc = Discriminator(KindVerification)
)

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) raw(b []byte) { e.buf.Write(b) }

func (e *encoder) u8(v uint8) { e.buf.WriteByte(v) }

func (e *encoder) u16(v uint16) {
	e.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
}

func (e *encoder) i64(v int64) {
	e.buf.Write(binary.LittleEndian.AppendUint64(nil, uint64(v)))
}

func (e *encoder) bool(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) str(s string) {
	e.buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(s))))
	e.buf.WriteString(s)
}

func (e *encoder) optKey(k *[32]byte) {
	if k == nil {
		e.u8(0)
		return
	}
	e.u8(1)
	e.raw(k[:])
}

func (e *encoder) optI64(v *int64) {
	if v == nil {
		e.u8(0)
		return
	}
	e.u8(1)
	e.i64(*v)
}

type decoder struct {
	data []byte
	off  int
	err  error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.data)-d.off < n {
		d.err = fmt.Errorf("decode at offset %d: %w", d.off, io.ErrUnexpectedEOF)
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) key() (k [32]byte) {
	copy(k[:], d.take(32))
	return k
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) i64() int64 {
	if b := d.take(8); b != nil {
		return int64(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (d *decoder) bool() bool {
	switch v := d.u8(); v {
	case 0:
		return false
	case 1:
		return true
	default:
		if d.err == nil {
			d.err = fmt.Errorf("invalid bool tag %d at offset %d", v, d.off-1)
		}
		return false
	}
}

func (d *decoder) str(limit int) string {
	b := d.take(4)
	if b == nil {
		return ""
	}
	n := binary.LittleEndian.Uint32(b)
	if int64(n) > int64(limit) {
		d.err = fmt.Errorf("string length %d exceeds capacity %d", n, limit)
		return ""
	}
	return string(d.take(int(n)))
}

func (d *decoder) optKey() *[32]byte {
	if !d.bool() {
		return nil
	}
	k := d.key()
	return &k
}

func (d *decoder) optI64() *int64 {
	if !d.bool() {
		return nil
	}
	v := d.i64()
	return &v
}

func (d *decoder) discriminator(want [discriminatorLen]byte) {
	got := d.take(discriminatorLen)
	if d.err == nil && !bytes.Equal(got, want[:]) {
		d.err = ErrAccountDiscriminatorMismatch
	}
}

func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.data) {
		return fmt.Errorf("decode: %d trailing bytes", len(d.data)-d.off)
	}
	return nil
}

// EncodeRequest serializes a request with its discriminator.
func EncodeRequest(r *ResearchRequest) []byte {
	var e encoder
	e.raw(requestDisc[:])
	e.raw(r.Requester[:])
	e.str(r.Topic)
	e.u8(r.MaxSources)
	e.i64(r.Deadline)
	e.u8(uint8(r.Status))
	e.i64(r.CreatedAt)
	e.optKey((*[32]byte)(r.Researcher))
	e.optKey((*[32]byte)(r.MethodologyHash))
	e.optI64(r.MethodologyCommittedAt)
	e.optI64(r.CompletedAt)
	return e.buf.Bytes()
}

// DecodeRequest is the inverse of EncodeRequest.
func DecodeRequest(data []byte) (*ResearchRequest, error) {
	d := decoder{data: data}
	d.discriminator(requestDisc)
	r := &ResearchRequest{}
	r.Requester = d.key()
	r.Topic = d.str(MaxTopicLen)
	r.MaxSources = d.u8()
	r.Deadline = d.i64()
	r.Status = RequestStatus(d.u8())
	r.CreatedAt = d.i64()
	r.Researcher = (*Pubkey)(d.optKey())
	r.MethodologyHash = (*Hash)(d.optKey())
	r.MethodologyCommittedAt = d.optI64()
	r.CompletedAt = d.optI64()
	if err := d.finish(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KindRequest, err)
	}
	if r.Status > StatusCancelled {
		return nil, fmt.Errorf("decode %s: invalid status %d", KindRequest, r.Status)
	}
	return r, nil
}

// EncodeReport serializes a report with its discriminator. All source slots are written.
func EncodeReport(r *ResearchReport) []byte {
	var e encoder
	e.raw(reportDisc[:])
	e.raw(r.Request[:])
	e.raw(r.Researcher[:])
	e.raw(r.ReportHash[:])
	for i := range r.SourceHashes {
		e.raw(r.SourceHashes[i][:])
	}
	e.u8(r.SourceCount)
	e.str(r.ArweaveTx)
	e.i64(r.SubmittedAt)
	e.bool(r.Verified)
	e.u16(r.VerificationCount)
	return e.buf.Bytes()
}

// DecodeReport is the inverse of EncodeReport.
func DecodeReport(data []byte) (*ResearchReport, error) {
	d := decoder{data: data}
	d.discriminator(reportDisc)
	r := &ResearchReport{}
	r.Request = d.key()
	r.Researcher = d.key()
	r.ReportHash = d.key()
	for i := range r.SourceHashes {
		r.SourceHashes[i] = d.key()
	}
	r.SourceCount = d.u8()
	r.ArweaveTx = d.str(MaxArweaveTxLen)
	r.SubmittedAt = d.i64()
	r.Verified = d.bool()
	r.VerificationCount = d.u16()
	if err := d.finish(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KindReport, err)
	}
	if r.SourceCount > MaxSources {
		return nil, fmt.Errorf("decode %s: source count %d exceeds capacity", KindReport, r.SourceCount)
	}
	return r, nil
}

// EncodeVerification serializes a verification with its discriminator.
func EncodeVerification(v *Verification) []byte {
	var e encoder
	e.raw(verificationDisc[:])
	e.raw(v.Report[:])
	e.raw(v.Verifier[:])
	e.bool(v.IsValid)
	e.optKey((*[32]byte)(v.NotesHash))
	e.i64(v.VerifiedAt)
	return e.buf.Bytes()
}

// DecodeVerification is the inverse of EncodeVerification.
func DecodeVerification(data []byte) (*Verification, error) {
	d := decoder{data: data}
	d.discriminator(verificationDisc)
	v := &Verification{}
	v.Report = d.key()
	v.Verifier = d.key()
	v.IsValid = d.bool()
	v.NotesHash = (*Hash)(d.optKey())
	v.VerifiedAt = d.i64()
	if err := d.finish(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KindVerification, err)
	}
	return v, nil
}
