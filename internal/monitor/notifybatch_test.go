package monitor

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
)

// encodeNotifyRecord appends one FILE_NOTIFY_INFORMATION record to buf.
// next is the offset to the following record, 0 for the last one.
func encodeNotifyRecord(buf []byte, next uint32, name string) []byte {
	units := utf16.Encode([]rune(name))

	var header [12]byte
	binary.LittleEndian.PutUint32(header[0:], next)
	binary.LittleEndian.PutUint32(header[4:], 3) // FILE_ACTION_MODIFIED
	binary.LittleEndian.PutUint32(header[8:], uint32(len(units)*2))
	buf = append(buf, header[:]...)

	for _, u := range units {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], u)
		buf = append(buf, b[:]...)
	}
	return buf
}

func TestDecodeNotifyBatch_SingleRecord(t *testing.T) {
	buf := encodeNotifyRecord(nil, 0, `src\main.go`)

	names := decodeNotifyBatch(buf)
	assert.Equal(t, []string{`src\main.go`}, names)
}

func TestDecodeNotifyBatch_MultipleRecords(t *testing.T) {
	first := encodeNotifyRecord(nil, 0, "a.txt")
	buf := encodeNotifyRecord(nil, uint32(len(first)), "a.txt")
	buf = encodeNotifyRecord(buf, 0, `.git\index`)

	names := decodeNotifyBatch(buf)
	assert.Equal(t, []string{"a.txt", `.git\index`}, names)
}

func TestDecodeNotifyBatch_PaddedNextOffset(t *testing.T) {
	// Records are DWORD-aligned in practice; NextEntryOffset may exceed the
	// record length. The decoder must honor the offset, not the length.
	buf := encodeNotifyRecord(nil, 0, "abc")
	padded := uint32(len(buf) + 4)
	buf = encodeNotifyRecord(nil, padded, "abc")
	buf = append(buf, 0, 0, 0, 0)
	buf = encodeNotifyRecord(buf, 0, "xyz")

	names := decodeNotifyBatch(buf)
	assert.Equal(t, []string{"abc", "xyz"}, names)
}

func TestDecodeNotifyBatch_Empty(t *testing.T) {
	assert.Empty(t, decodeNotifyBatch(nil))
	assert.Empty(t, decodeNotifyBatch([]byte{1, 2, 3}))
}

func TestDecodeNotifyBatch_TruncatedName(t *testing.T) {
	buf := encodeNotifyRecord(nil, 0, "longfilename.txt")
	truncated := buf[:14]

	assert.Empty(t, decodeNotifyBatch(truncated))
}

func TestDecodeNotifyBatch_UnicodeName(t *testing.T) {
	buf := encodeNotifyRecord(nil, 0, "héllo📁.txt")

	names := decodeNotifyBatch(buf)
	assert.Equal(t, []string{"héllo📁.txt"}, names)
}
