package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/disappointingsupernova/sessiongate/device"
)

const sessionFormatVersionCurrent = 1

// Encode serializes s in the current binary format.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(160)

	buf.WriteByte(sessionFormatVersionCurrent)

	for _, f := range []struct {
		name  string
		value string
	}{
		{"id", s.ID},
		{"userID", s.UserID},
		{"deviceID", s.Device.DeviceID},
		{"clientType", string(s.Device.ClientType)},
		{"browserFamily", s.Device.BrowserFamily},
		{"browserVersion", s.Device.BrowserVersion},
		{"ip", s.Device.IP},
		{"asn", s.Device.ASN},
		{"country", s.Device.Country},
		{"revokedReason", s.RevokedReason},
	} {
		if err := writeString(&buf, f.value); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
	}

	if s.Risk < 0 {
		return nil, errors.New("negative risk")
	}
	buf.WriteByte(byte(s.State))

	var scratch [8]byte
	binary.BigEndian.PutUint32(scratch[:4], uint32(s.Risk))
	buf.Write(scratch[:4])
	binary.BigEndian.PutUint32(scratch[:4], s.Version)
	buf.Write(scratch[:4])

	for _, ts := range []time.Time{s.CreatedAt, s.LastSeenAt, s.AbsoluteExpiresAt, s.RevokedAt} {
		binary.BigEndian.PutUint64(scratch[:], uint64(unixNano(ts)))
		buf.Write(scratch[:])
	}

	return buf.Bytes(), nil
}

// Decode parses data produced by [Encode].
func Decode(data []byte) (*Session, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, errors.New("invalid session version")
	}

	var fields [10]string
	for i := range fields {
		if fields[i], err = readString(r); err != nil {
			return nil, err
		}
	}

	state, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if State(state) < StateActive || State(state) > StateRevoked {
		return nil, errors.New("invalid session state")
	}

	var risk, ver uint32
	if err := binary.Read(r, binary.BigEndian, &risk); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &ver); err != nil {
		return nil, err
	}
	if risk > 1<<31-1 {
		return nil, errors.New("invalid risk score")
	}

	var stamps [4]int64
	for i := range stamps {
		if err := binary.Read(r, binary.BigEndian, &stamps[i]); err != nil {
			return nil, err
		}
	}
	if r.Len() != 0 {
		return nil, errors.New("trailing session bytes")
	}

	return &Session{
		ID:     fields[0],
		UserID: fields[1],
		Device: device.Context{
			DeviceID:       fields[2],
			ClientType:     device.ClientType(fields[3]),
			BrowserFamily:  fields[4],
			BrowserVersion: fields[5],
			IP:             fields[6],
			ASN:            fields[7],
			Country:        fields[8],
		},
		RevokedReason:     fields[9],
		State:             State(state),
		Risk:              int(risk),
		Version:           ver,
		CreatedAt:         fromUnixNano(stamps[0]),
		LastSeenAt:        fromUnixNano(stamps[1]),
		AbsoluteExpiresAt: fromUnixNano(stamps[2]),
		RevokedAt:         fromUnixNano(stamps[3]),
	}, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 255 {
		return errors.New("too long")
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
