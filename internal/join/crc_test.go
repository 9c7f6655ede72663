package join

import (
	"hash/crc32"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChecksum_vectors(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"", 0x00000000},
		{"a", 0xE8B7BE43},
		{"abc", 0x352441C2},
		{"123456789", 0xCBF43926},
		{"The quick brown fox jumps over the lazy dog", 0x414FA339},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Checksum([]byte(tt.in)), "input %q", tt.in)
	}
}

func TestChecksum_matches_ieee(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		buf := make([]byte, r.Intn(512))
		r.Read(buf)
		assert.Equal(t, crc32.ChecksumIEEE(buf), Checksum(buf))
	}
}

func TestChecksum_single_byte_change(t *testing.T) {
	base := []byte("1700000000000")
	sum := Checksum(base)
	assert.Equal(t, sum, Checksum(base), "deterministic")
	for i := range base {
		mod := append([]byte(nil), base...)
		mod[i] ^= 0x01
		assert.NotEqual(t, sum, Checksum(mod), "byte %d", i)
	}
}

func TestLatin1(t *testing.T) {
	assert.Equal(t, []byte("12345"), latin1("12345"))
	assert.Equal(t, []byte{0xE9}, latin1("é"))
	assert.Equal(t, []byte("?"), latin1("€"))
}

func TestFingerprint(t *testing.T) {
	start := time.UnixMilli(1700000000123)
	assert.Equal(t, Checksum([]byte("1700000000123")), Fingerprint(start, 0))
	assert.Equal(t, Checksum([]byte("1700000000123#7")), Fingerprint(start, 7))
	assert.NotEqual(t, Fingerprint(start, 0), Fingerprint(start, 1))
}

func TestNewFingerprint_distinct_within_same_tick(t *testing.T) {
	now := time.Now()
	a := newFingerprint(now)
	b := newFingerprint(now)
	assert.NotEqual(t, a, b)
}

func TestUnitName(t *testing.T) {
	name := UnitName(0xCBF43926, 12)
	assert.Equal(t, "3421780262_12", name)
	assert.True(t, strings.HasSuffix(UnitName(1, 3), "_3"))
}
