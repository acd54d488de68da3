package objectid

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("objectid")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// Size is the length of an identifier in bytes
	Size = 12
	// HexLen is the length of the hex representation of an identifier
	HexLen = 2 * Size

	counterMask = 1<<24 - 1 // the counter wraps at 2^24
)

// ErrInvalidHex is returned when a string is not a valid identifier
var ErrInvalidHex = errors.New("invalid identifier hex")

// --------------------------------------------------------------------------
// Process wide state
// --------------------------------------------------------------------------

var (
	counter     atomic.Uint32 // only the lower 24 bits are used
	fingerprint = hostFingerprint()
	processID   = uint16(os.Getpid())
)

func init() {
	counter.Store(uint32(util.GenerateSeed()) & counterMask)
}

// hostFingerprint returns the first three bytes of the hashed host name.
// If the host name is not available a random value is used instead.
func hostFingerprint() [3]byte {
	var fp [3]byte
	var b [8]byte

	host, err := os.Hostname()
	if err != nil || host == "" {
		Logger.Warningf("host name unavailable, using random fingerprint: %v", err)
		binary.BigEndian.PutUint64(b[:], util.GenerateSeed())
	} else {
		binary.BigEndian.PutUint64(b[:], uint64(util.HashString(host, 0)))
	}

	copy(fp[:], b[:3])
	return fp
}

// --------------------------------------------------------------------------
// ID Type
// --------------------------------------------------------------------------

// ID is a 12 byte, time-ordered document identifier:
//
//	[4 byte unix seconds][3 byte host fingerprint][2 byte pid][3 byte counter]
//
// All integers are big-endian so that the byte order equals the time order.
// The zero value is the empty identifier.
type ID [Size]byte

// Nil is the empty identifier
var Nil ID

// New generates a new identifier for the current time.
//
// Thread-safety: This function is thread-safe and never blocks.
func New() ID {
	return NewWithTime(time.Now())
}

// NewWithTime generates a new identifier with the given timestamp.
// Only the seconds of t are used.
//
// Thread-safety: This function is thread-safe and never blocks.
func NewWithTime(t time.Time) ID {
	var id ID

	binary.BigEndian.PutUint32(id[0:4], uint32(t.Unix()))
	copy(id[4:7], fingerprint[:])
	binary.BigEndian.PutUint16(id[7:9], processID)

	c := counter.Add(1) & counterMask
	id[9] = byte(c >> 16)
	id[10] = byte(c >> 8)
	id[11] = byte(c)

	return id
}

// FromHex parses a 24 character hex string into an identifier
func FromHex(s string) (ID, error) {
	var id ID
	if len(s) != HexLen {
		return Nil, fmt.Errorf("%w: %q has length %d (expected %d)", ErrInvalidHex, s, len(s), HexLen)
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return Nil, fmt.Errorf("%w: %q: %v", ErrInvalidHex, s, err)
	}
	return id, nil
}

// MustFromHex is like FromHex but panics if s is not a valid identifier
func MustFromHex(s string) ID {
	id, err := FromHex(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsValidHex reports whether s is a valid hex encoded identifier
func IsValidHex(s string) bool {
	_, err := FromHex(s)
	return err == nil
}

// Hex returns the 24 character lowercase hex representation
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String implements fmt.Stringer
func (id ID) String() string {
	return id.Hex()
}

// IsZero reports whether the identifier is empty
func (id ID) IsZero() bool {
	return id == Nil
}

// Timestamp returns the creation time encoded in the identifier (second precision)
func (id ID) Timestamp() time.Time {
	return time.Unix(int64(binary.BigEndian.Uint32(id[0:4])), 0)
}

// Compare returns -1, 0, 1 based on the byte order of the identifiers
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// MarshalText encodes the identifier as hex. The empty identifier is encoded as an empty string.
func (id ID) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return []byte{}, nil
	}
	return []byte(id.Hex()), nil
}

// UnmarshalText decodes a hex encoded identifier. An empty input yields the empty identifier.
func (id *ID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*id = Nil
		return nil
	}
	parsed, err := FromHex(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
