package stores

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	pendingLoginVersion1 = 1
)

// ErrPendingLoginCorrupt is returned when a stored pending login cannot be decoded.
var ErrPendingLoginCorrupt = errors.New("pending login record corrupt")

// PendingLogin is the provider credential parked between callback and poll.
type PendingLogin struct {
	ProviderID   string
	AccessToken  string
	TokenType    string
	RefreshToken string
	IDToken      string
	// Expiry is the provider token expiry in unix seconds, 0 when unknown.
	Expiry int64
}

// EncodePendingLogin serialises record in the version 1 layout: a version
// byte, the big-endian expiry, then five uint16-length-prefixed strings.
func EncodePendingLogin(record *PendingLogin) ([]byte, error) {
	if record == nil {
		return nil, errors.New("pending login required")
	}
	var buf bytes.Buffer
	buf.WriteByte(pendingLoginVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Expiry); err != nil {
		return nil, err
	}
	for _, field := range []string{
		record.ProviderID,
		record.AccessToken,
		record.TokenType,
		record.RefreshToken,
		record.IDToken,
	} {
		if len(field) > 65535 {
			return nil, errors.New("pending login field length exceeded")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}
	return buf.Bytes(), nil
}

// DecodePendingLogin reverses EncodePendingLogin.
func DecodePendingLogin(data []byte) (*PendingLogin, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrPendingLoginCorrupt
	}
	if version != pendingLoginVersion1 {
		return nil, ErrPendingLoginCorrupt
	}

	record := &PendingLogin{}
	if err := binary.Read(reader, binary.BigEndian, &record.Expiry); err != nil {
		return nil, ErrPendingLoginCorrupt
	}

	fields := []*string{
		&record.ProviderID,
		&record.AccessToken,
		&record.TokenType,
		&record.RefreshToken,
		&record.IDToken,
	}
	for _, field := range fields {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, ErrPendingLoginCorrupt
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, ErrPendingLoginCorrupt
		}
		*field = string(raw)
	}
	if reader.Len() != 0 {
		return nil, ErrPendingLoginCorrupt
	}
	return record, nil
}
