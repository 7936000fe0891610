package p2m

import (
	"encoding/binary"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/trace2e/t2ecore/t2eerrors"
)

// GrantID is the 128-bit authorization token from spec §3/§4.5/§9: the
// high 8 bytes are a wall-clock nanosecond timestamp, the low 8 bytes an
// atomic per-process counter. The counter exists because Go's time.Now()
// resolution plus goroutine scheduling makes bare-nanosecond collisions
// plausible under the contention load described in spec §8 scenario 6 —
// exactly the case spec §9 anticipates ("augment with a per-process atomic
// tiebreaker if collisions are possible on the target platform").
type GrantID [16]byte

var grantCounter atomic.Uint64

// NewGrantID mints a fresh GrantID.
func NewGrantID() (GrantID, error) {
	now := time.Now()
	if now.UnixNano() <= 0 {
		return GrantID{}, t2eerrors.SystemTimeError(nil)
	}
	var id GrantID
	binary.BigEndian.PutUint64(id[:8], uint64(now.UnixNano()))
	binary.BigEndian.PutUint64(id[8:], grantCounter.Add(1))
	return id, nil
}

// String renders the GrantID as a decimal u128, per spec §6
// ("Grant{id:string[decimal u128]}").
func (g GrantID) String() string {
	return new(big.Int).SetBytes(g[:]).String()
}

// ParseGrantID parses the decimal-u128 textual form back into a GrantID.
func ParseGrantID(s string) (GrantID, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return GrantID{}, t2eerrors.InvalidResourceFormat("malformed grant_id %q", s)
	}
	b := n.Bytes()
	if len(b) > 16 {
		return GrantID{}, t2eerrors.InvalidResourceFormat("grant_id %q overflows 128 bits", s)
	}
	var id GrantID
	copy(id[16-len(b):], b)
	return id, nil
}
