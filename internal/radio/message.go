package radio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ErrTruncated is returned when a parcel ends before all fields are read.
var ErrTruncated = errors.New("capability message truncated")

// CapabilityMessage is the wire form of a Snapshot as carried by
// GET_RADIO_CAPABILITY and SET_RADIO_CAPABILITY.
//
// Layout (little-endian parcel):
//
//	int32  session
//	int32  phase
//	int32  access family bitmap
//	string logical modem id (int32 byte length, -1 for null, bytes, pad to 4)
//	int32  status
type CapabilityMessage struct {
	Session  int32
	Phase    Phase
	Families AccessFamily
	ModemID  string
	// NullModemID distinguishes a null string from an empty one on the wire.
	NullModemID bool
	Status      Status
}

// MessageFromSnapshot builds the wire form of s.
func MessageFromSnapshot(s Snapshot) CapabilityMessage {
	return CapabilityMessage{
		Session:  s.Session,
		Phase:    s.Phase,
		Families: s.Families,
		ModemID:  norm.NFC.String(s.ModemID),
		Status:   s.Status,
	}
}

// Snapshot converts the message back to the in-memory form.
func (m CapabilityMessage) Snapshot() Snapshot {
	return Snapshot{
		Families: m.Families,
		ModemID:  m.ModemID,
		Session:  m.Session,
		Phase:    m.Phase,
		Status:   m.Status,
	}
}

// MarshalBinary encodes the message. It fails on unknown phase or status
// values and on modem ids that are not valid UTF-8.
func (m CapabilityMessage) MarshalBinary() ([]byte, error) {
	if !m.Phase.Valid() {
		return nil, fmt.Errorf("encode capability message: invalid phase %d", int32(m.Phase))
	}
	if !m.Status.Valid() {
		return nil, fmt.Errorf("encode capability message: invalid status %d", int32(m.Status))
	}
	if !utf8.ValidString(m.ModemID) {
		return nil, fmt.Errorf("encode capability message: modem id is not valid UTF-8")
	}

	buf := make([]byte, 0, 20+pad4(len(m.ModemID)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Session))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Phase))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Families))
	if m.NullModemID && m.ModemID == "" {
		buf = binary.LittleEndian.AppendUint32(buf, 0xffffffff)
	} else {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.ModemID)))
		buf = append(buf, m.ModemID...)
		for i := len(m.ModemID); i < pad4(len(m.ModemID)); i++ {
			buf = append(buf, 0)
		}
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Status))
	return buf, nil
}

// UnmarshalBinary decodes data into m. Truncated input, unknown enum values,
// non-zero padding and trailing bytes are rejected.
func (m *CapabilityMessage) UnmarshalBinary(data []byte) error {
	r := parcelReader{data: data}

	session, err := r.int32()
	if err != nil {
		return err
	}
	phase, err := r.int32()
	if err != nil {
		return err
	}
	families, err := r.int32()
	if err != nil {
		return err
	}
	id, null, err := r.string()
	if err != nil {
		return err
	}
	status, err := r.int32()
	if err != nil {
		return err
	}
	if r.off != len(data) {
		return fmt.Errorf("decode capability message: %d trailing bytes", len(data)-r.off)
	}

	out := CapabilityMessage{
		Session:     session,
		Phase:       Phase(phase),
		Families:    AccessFamily(uint32(families)),
		ModemID:     id,
		NullModemID: null,
		Status:      Status(status),
	}
	if !out.Phase.Valid() {
		return fmt.Errorf("decode capability message: unknown phase %d", phase)
	}
	if !out.Status.Valid() {
		return fmt.Errorf("decode capability message: unknown status %d", status)
	}
	*m = out
	return nil
}

// DecodeMessage is a convenience wrapper around UnmarshalBinary.
func DecodeMessage(data []byte) (CapabilityMessage, error) {
	var m CapabilityMessage
	err := m.UnmarshalBinary(data)
	return m, err
}

type parcelReader struct {
	data []byte
	off  int
}

func (r *parcelReader) int32() (int32, error) {
	if len(r.data)-r.off < 4 {
		return 0, ErrTruncated
	}
	v := int32(binary.LittleEndian.Uint32(r.data[r.off:]))
	r.off += 4
	return v, nil
}

func (r *parcelReader) string() (string, bool, error) {
	n, err := r.int32()
	if err != nil {
		return "", false, err
	}
	if n == -1 {
		return "", true, nil
	}
	if n < 0 {
		return "", false, fmt.Errorf("decode capability message: negative string length %d", n)
	}
	size := pad4(int(n))
	if len(r.data)-r.off < size {
		return "", false, ErrTruncated
	}
	raw := r.data[r.off : r.off+int(n)]
	for _, b := range r.data[r.off+int(n) : r.off+size] {
		if b != 0 {
			return "", false, fmt.Errorf("decode capability message: non-zero string padding")
		}
	}
	if !utf8.Valid(raw) {
		return "", false, fmt.Errorf("decode capability message: modem id is not valid UTF-8")
	}
	r.off += size
	return string(raw), false, nil
}

func pad4(n int) int {
	return (n + 3) &^ 3
}
