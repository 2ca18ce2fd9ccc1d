package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/ragline/core"
)

// Key prefixes for different data types. Every prefix ends with ':' so no
// prefix is a prefix of another.
const (
	documentPrefix      = "doc:"
	documentOwnerPrefix = "docown:"
	chunkPrefix         = "chk:"
	chunkIDPrefix       = "chkid:"
	embeddingPrefix     = "emb:"
	conversationPrefix  = "conv:"
	convOwnerPrefix     = "convown:"
	messagePrefix       = "msg:"
	messageIDPrefix     = "msgid:"
	checkpointPrefix    = "chkpt:"

	documentIDSeq     = "seq:doc"
	chunkIDSeq        = "seq:chk"
	embeddingIDSeq    = "seq:emb"
	conversationIDSeq = "seq:conv"
	messageIDSeq      = "seq:msg"
)

// keyBuilder assembles binary keys. Integers are written BigEndian so
// lexicographic order matches numeric order.
type keyBuilder []byte

func newKey(prefix string, extra int) keyBuilder {
	buf := make(keyBuilder, 0, len(prefix)+extra)
	return append(buf, prefix...)
}

func (k keyBuilder) id(id core.ID) keyBuilder {
	return binary.BigEndian.AppendUint64(k, uint64(id))
}

func (k keyBuilder) uint(v uint64) keyBuilder {
	return binary.BigEndian.AppendUint64(k, v)
}

func (k keyBuilder) str(s string) keyBuilder {
	k = append(k, s...)
	return append(k, 0)
}

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return newKey(documentPrefix, 8).id(id)
}

// makeDocumentOwnerKey generates the owner index key.
// Format: prefix owner \0 docID
func makeDocumentOwnerKey(owner string, id core.ID) []byte {
	return newKey(documentOwnerPrefix, len(owner)+9).str(owner).id(id)
}

// makeDocumentOwnerPrefix generates the scan prefix for an owner's documents.
func makeDocumentOwnerPrefix(owner string) []byte {
	return newKey(documentOwnerPrefix, len(owner)+1).str(owner)
}

// makeChunkKey generates a key for a chunk.
// Format: prefix docID index
func makeChunkKey(docID core.ID, index int) []byte {
	return newKey(chunkPrefix, 16).id(docID).uint(uint64(index))
}

// makeChunkDocPrefix generates the scan prefix for a document's chunks.
func makeChunkDocPrefix(docID core.ID) []byte {
	return newKey(chunkPrefix, 8).id(docID)
}

// makeChunkIDKey generates the reverse lookup key from chunk ID to chunk key.
func makeChunkIDKey(chunkID core.ID) []byte {
	return newKey(chunkIDPrefix, 8).id(chunkID)
}

// makeEmbeddingKey generates a key for the embedding of a chunk.
// Format: prefix docID chunkID. One key per chunk makes the embedding unique.
func makeEmbeddingKey(docID, chunkID core.ID) []byte {
	return newKey(embeddingPrefix, 16).id(docID).id(chunkID)
}

// makeEmbeddingDocPrefix generates the scan prefix for a document's embeddings.
func makeEmbeddingDocPrefix(docID core.ID) []byte {
	return newKey(embeddingPrefix, 8).id(docID)
}

// parseEmbeddingKey extracts document and chunk IDs from an embedding key.
func parseEmbeddingKey(key []byte) (docID, chunkID core.ID, ok bool) {
	rest := key[len(embeddingPrefix):]
	if len(rest) != 16 {
		return 0, 0, false
	}
	return core.ID(binary.BigEndian.Uint64(rest[:8])), core.ID(binary.BigEndian.Uint64(rest[8:])), true
}

// makeConversationKey generates a key for a conversation by ID.
func makeConversationKey(id core.ID) []byte {
	return newKey(conversationPrefix, 8).id(id)
}

// makeConversationOwnerKey generates the owner index key for conversations.
func makeConversationOwnerKey(owner string, id core.ID) []byte {
	return newKey(convOwnerPrefix, len(owner)+9).str(owner).id(id)
}

// makeConversationOwnerPrefix generates the scan prefix for an owner's conversations.
func makeConversationOwnerPrefix(owner string) []byte {
	return newKey(convOwnerPrefix, len(owner)+1).str(owner)
}

// makeMessageKey generates a key for a message.
// Format: prefix convID timestamp msgID, so ties on timestamp fall back to
// insertion order.
func makeMessageKey(convID core.ID, ts time.Time, msgID core.ID) []byte {
	return newKey(messagePrefix, 24).id(convID).uint(uint64(ts.UnixMicro())).id(msgID)
}

// makeMessageConvPrefix generates the scan prefix for a conversation's messages.
func makeMessageConvPrefix(convID core.ID) []byte {
	return newKey(messagePrefix, 8).id(convID)
}

// makeMessageIDKey generates the reverse lookup key from message ID to message key.
func makeMessageIDKey(msgID core.ID) []byte {
	return newKey(messageIDPrefix, 8).id(msgID)
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processorType string) []byte {
	return newKey(checkpointPrefix, len(processorType)).str(processorType)
}

// idSuffix decodes the trailing 8-byte ID of an index key.
func idSuffix(key []byte) core.ID {
	if len(key) < 8 {
		return 0
	}
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// prefixEnd returns a key sorting after every key under prefix that this
// package writes.
// Used to start reverse iteration.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix), len(prefix)+32)
	copy(end, prefix)
	for range 32 {
		end = append(end, 0xff)
	}
	return end
}
