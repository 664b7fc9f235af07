// Package metadata locates and decodes the CBOR metadata trailer the
// Solidity compiler appends to deployed bytecode.
//
// The decoder is an external collaborator interface; this package supplies
// the default implementation of it, since the trailer format is a fixed,
// well-known wire format (not verification logic: it only locates and
// parses the trailer, it never inspects or judges the contract).
package metadata

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrTrailerTooShort is returned when the bytecode is shorter than the
	// 2-byte length prefix the format requires.
	ErrTrailerTooShort = errors.New("metadata: bytecode too short to contain a trailer")

	// ErrTrailerOutOfRange is returned when the declared trailer length
	// would read past the start of the bytecode.
	ErrTrailerOutOfRange = errors.New("metadata: declared trailer length exceeds bytecode")
)

// CBORData is the decoded trailer, opaque to the monitoring core beyond what
// SourceAddress extracts from it.
type CBORData map[string]interface{}

// SourceAddress is the content-addressed pointer to off-chain source
// material, opaque to ChainMonitor -- it is handed unexamined to the
// SourceFetcher.
type SourceAddress struct {
	// IPFS is the ipfs:// style locator, when present.
	IPFS string
	// BzzR1 is the swarm (bzzr1) content hash, when present.
	BzzR1 string
	// Raw is the fully decoded trailer, for fetchers that need fields this
	// type doesn't surface directly.
	Raw CBORData
}

// Decoder extracts the raw CBOR trailer struct from deployed bytecode.
type Decoder interface {
	Decode(bytecode []byte) (CBORData, error)
}

// AddressFactory turns a decoded trailer into a SourceAddress.
type AddressFactory interface {
	FromCBORData(data CBORData) (SourceAddress, error)
}

type defaultDecoder struct{}

// NewDecoder returns the default trailer decoder: it reads the last 2 bytes
// of bytecode as a big-endian length, then CBOR-decodes the preceding
// `length` bytes.
func NewDecoder() Decoder {
	return defaultDecoder{}
}

func (defaultDecoder) Decode(bytecode []byte) (CBORData, error) {
	if len(bytecode) < 2 {
		return nil, ErrTrailerTooShort
	}

	trailerLen := int(bytecode[len(bytecode)-2])<<8 | int(bytecode[len(bytecode)-1])
	end := len(bytecode) - 2
	start := end - trailerLen
	if trailerLen <= 0 || start < 0 {
		return nil, ErrTrailerOutOfRange
	}

	var data CBORData
	if err := cbor.Unmarshal(bytecode[start:end], &data); err != nil {
		return nil, err
	}
	return data, nil
}

type defaultAddressFactory struct{}

func NewAddressFactory() AddressFactory {
	return defaultAddressFactory{}
}

func (defaultAddressFactory) FromCBORData(data CBORData) (SourceAddress, error) {
	addr := SourceAddress{Raw: data}

	if raw, ok := data["ipfs"]; ok {
		if b, ok := rawBytes(raw); ok {
			addr.IPFS = "ipfs://" + hex.EncodeToString(b)
		}
	}
	if raw, ok := data["bzzr1"]; ok {
		if b, ok := rawBytes(raw); ok {
			addr.BzzR1 = hex.EncodeToString(b)
		}
	}

	if addr.IPFS == "" && addr.BzzR1 == "" {
		return SourceAddress{}, errors.New("metadata: trailer carried no recognized source locator")
	}
	return addr, nil
}

func rawBytes(v interface{}) ([]byte, bool) {
	switch t := v.(type) {
	case []byte:
		return t, true
	case string:
		s := strings.TrimPrefix(t, "0x")
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, false
		}
		return b, true
	default:
		return nil, false
	}
}
