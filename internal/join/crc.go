package join

import (
	"strconv"
	"sync/atomic"
	"time"
)

// CRC-32 (IEEE 802.3), reflected polynomial 0xEDB88320.
var crcTable = makeCRCTable()

func makeCRCTable() [256]uint32 {
	var t [256]uint32
	for i := 0; i < 256; i++ {
		c := uint32(i)
		for j := 0; j < 8; j++ {
			if c&1 == 1 {
				c = 0xEDB88320 ^ (c >> 1)
			} else {
				c >>= 1
			}
		}
		t[i] = c
	}
	return t
}

// Checksum returns the CRC-32 of data.
func Checksum(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = crcTable[byte(crc)^b] ^ (crc >> 8)
	}
	return ^crc
}

// latin1 encodes s one byte per character. Characters outside
// the Latin-1 range become '?'.
func latin1(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			r = '?'
		}
		out = append(out, byte(r))
	}
	return out
}

var sessionNonce atomic.Uint64

// Fingerprint returns the checksum of the decimal millisecond timestamp of
// start. A non-zero nonce is appended as "#<nonce>" before hashing.
func Fingerprint(start time.Time, nonce uint64) uint32 {
	s := strconv.FormatInt(start.UnixMilli(), 10)
	if nonce != 0 {
		s += "#" + strconv.FormatUint(nonce, 10)
	}
	return Checksum(latin1(s))
}

// newFingerprint derives a fingerprint for a session starting now. The first
// session in the process hashes the bare timestamp; later ones carry a nonce
// so two sessions created within the same millisecond never share names.
func newFingerprint(now time.Time) uint32 {
	return Fingerprint(now, sessionNonce.Add(1)-1)
}

// UnitName is the container identifier of segment index within a session.
func UnitName(fingerprint uint32, index int) string {
	return strconv.FormatUint(uint64(fingerprint), 10) + "_" + strconv.Itoa(index)
}
