package monitor

import (
	"encoding/binary"
	"unicode/utf16"
)

// decodeNotifyBatch decodes a FILE_NOTIFY_INFORMATION batch as produced by
// ReadDirectoryChangesW into the worktree-relative file names it mentions.
// Layout per record: NextEntryOffset (u32), Action (u32), FileNameLength
// (u32, bytes), then FileNameLength/2 UTF-16 code units. The action kind is
// ignored; any mentioned name counts as a change. Truncated batches are
// decoded as far as they go.
func decodeNotifyBatch(buf []byte) []string {
	const headerSize = 12

	var names []string
	offset := 0
	for offset+headerSize <= len(buf) {
		next := int(binary.LittleEndian.Uint32(buf[offset:]))
		nameLen := int(binary.LittleEndian.Uint32(buf[offset+8:]))

		nameStart := offset + headerSize
		if nameLen < 0 || nameStart+nameLen > len(buf) {
			break
		}

		units := make([]uint16, nameLen/2)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(buf[nameStart+2*i:])
		}
		names = append(names, string(utf16.Decode(units)))

		if next <= 0 {
			break
		}
		offset += next
	}
	return names
}
