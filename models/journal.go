package models

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// JournalEntry is one link of a relay's append-only submission journal. Each
// entry commits to the previous entry's hash, so rewriting history breaks the
// chain.
type JournalEntry struct {
	Index     uint64 `json:"index"`
	Timestamp int64  `json:"timestamp"`
	Data      []byte `json:"data"`
	PrevHash  []byte `json:"prev_hash"`
	Hash      []byte `json:"hash"`
}

func NewJournalEntry(index uint64, timestamp int64, data []byte, prevHash []byte) *JournalEntry {
	e := &JournalEntry{
		Index:     index,
		Timestamp: timestamp,
		Data:      data,
		PrevHash:  prevHash,
	}
	e.Hash = e.calculateHash()
	return e
}

func (e *JournalEntry) calculateHash() []byte {
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.BigEndian, e.Index)
	binary.Write(buffer, binary.BigEndian, e.Timestamp)
	buffer.Write(e.Data)
	buffer.Write(e.PrevHash)

	hash := sha256.Sum256(buffer.Bytes())
	return hash[:]
}

// Validate checks the entry's own hash.
func (e *JournalEntry) Validate() bool {
	return bytes.Equal(e.calculateHash(), e.Hash)
}

// ValidateJournal checks every hash and link of the journal. The first entry
// must link to 32 zero bytes.
func ValidateJournal(entries []*JournalEntry) error {
	prev := make([]byte, 32)
	for i, e := range entries {
		if !e.Validate() {
			return fmt.Errorf("journal entry %d has invalid hash", i)
		}
		if !bytes.Equal(e.PrevHash, prev) {
			return fmt.Errorf("journal entry %d has invalid previous hash link", i)
		}
		if e.Index != uint64(i) {
			return fmt.Errorf("journal entry %d has invalid index %d", i, e.Index)
		}
		if i > 0 && e.Timestamp < entries[i-1].Timestamp {
			return fmt.Errorf("journal entry %d has invalid timestamp", i)
		}
		prev = e.Hash
	}
	return nil
}
