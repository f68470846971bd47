package memcache

// Record access helpers.
//
// A record lives in the data table at the byte offset named by a slot.
// The data table is externally mutable, so nothing read from it is
// trusted: the record header must fit the table, the embedded length
// must cover the header and stay inside the table, and every payload
// offset is re-validated before use. A structural failure never aborts
// the process; it ends the walk as "not found".

// slotWithinBounds reports whether the slot names a chunk inside the
// data table. The sentinel and any out-of-range value fail this check,
// which is what terminates a chain walk.
func slotWithinBounds(slot uint32, dataSize uint64) bool {
	return uint64(slot)*slotChunkSize < dataSize
}

// fetchRecord returns the record bytes at the given slot and the byte
// offset of the record within the data table.
//
// Returns ok=false when the slot or the record's own length field would
// reach outside the data table. The caller must treat that as a failed
// walk, never as a partial record.
func fetchRecord(dt []byte, slot uint32) (rec []byte, off uint64, ok bool) {
	off = uint64(slot) * slotChunkSize
	dtSize := uint64(len(dt))

	if off+recHeaderSize > dtSize {
		return nil, 0, false
	}

	length := uint64(getUint32LE(dt[off+recLenOff:]))
	if length < recHeaderSize {
		return nil, 0, false
	}

	end := off + length
	if end < off || end > dtSize {
		return nil, 0, false
	}

	return dt[off:end], off, true
}

// nextSlotForHash returns the chain continuation of rec for the given
// hash, or the invalid sentinel when rec is not chained under it.
//
// A record can sit on two chains at once (one per derived key), which
// is why it carries two hash/next pairs.
func nextSlotForHash(rec []byte, hash uint32) uint32 {
	switch hash {
	case getUint32LE(rec[recHash1Off:]):
		return getUint32LE(rec[recNext1Off:])
	case getUint32LE(rec[recHash2Off:]):
		return getUint32LE(rec[recNext2Off:])
	default:
		return invalidSlot
	}
}

// initgrBounds validates the initgroups payload of the record at byte
// offset recOff against the data-table extent and returns the decoded
// member count and the data-table offsets of the GID array and the key
// string.
//
// keyLen is the query key length including its NUL terminator. Both the
// end of the GID array and the end of the key string must lie within
// the data table; the check runs on every access because the region is
// externally mutable and a prior validation proves nothing.
func initgrBounds(dtSize, recOff uint64, rec []byte, keyLen int) (count uint32, gidsOff, keyOff uint64, ok bool) {
	if uint64(len(rec)) < recHeaderSize+initgrHeaderSize {
		return 0, 0, 0, false
	}

	payload := rec[recHeaderSize:]
	count = getUint32LE(payload[initgrMembersOff:])
	relKey := uint64(getUint32LE(payload[initgrKeyOff:]))

	payloadOff := recOff + recHeaderSize

	gidsOff = payloadOff + initgrGIDsOff

	gidsEnd := gidsOff + uint64(count)*4
	if gidsEnd < gidsOff || gidsEnd > dtSize {
		return 0, 0, 0, false
	}

	keyOff = payloadOff + relKey
	if keyOff < payloadOff {
		return 0, 0, 0, false
	}

	keyEnd := keyOff + uint64(keyLen)
	if keyEnd < keyOff || keyEnd > dtSize {
		return 0, 0, 0, false
	}

	return count, gidsOff, keyOff, true
}
