package core

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// Serializers for stored records. Each value implements Marshal, Unmarshal,
// Size and Skip in the mus-go style: integers are varint encoded, strings are
// length prefixed, vector components are raw little-endian float32 and
// timestamps are Unix microseconds in UTC.
var (
	IDMUS           = idMUS{}
	DocumentMUS     = documentMUS{}
	ChunkMUS        = chunkMUS{}
	EmbeddingMUS    = embeddingMUS{}
	ConversationMUS = conversationMUS{}
	MessageMUS      = messageMUS{}
	CheckpointMUS   = checkpointMUS{}
)

var (
	timeMUS     = timeMicroMUS{}
	vectorMUS   = float32SliceMUS{}
	metaMUS     = stringMapMUS{}
	genMetaMUS  = generationMetadataPtrMUS{}
	float32Size = raw.Float32.Size(0)
)

type unmarshaller[T any] interface {
	Unmarshal(bs []byte) (T, int, error)
}

// recordReader accumulates the offset and first error of a field-by-field decode.
type recordReader struct {
	bs  []byte
	n   int
	err error
}

func read[T any](r *recordReader, u unmarshaller[T]) (v T) {
	if r.err != nil {
		return
	}
	var n int
	v, n, r.err = u.Unmarshal(r.bs[r.n:])
	r.n += n
	return
}

func (r *recordReader) length(elemSize int) int {
	l := read[int](r, varint.Int)
	if r.err == nil && (l < 0 || l > (len(r.bs)-r.n)/elemSize) {
		r.err = fmt.Errorf("%w: length %d exceeds remaining %d bytes", ErrMalformedRecord, l, len(r.bs)-r.n)
	}
	return l
}

// ID

type idMUS struct{}

func (idMUS) Marshal(id ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(id ID) int {
	return varint.Uint64.Size(uint64(id))
}

func (idMUS) Skip(bs []byte) (int, error) {
	return varint.Uint64.Skip(bs)
}

type timeMicroMUS struct{}

func (timeMicroMUS) Marshal(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func (timeMicroMUS) Unmarshal(bs []byte) (time.Time, int, error) {
	us, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(us).UTC(), n, nil
}

func (timeMicroMUS) Size(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

func (timeMicroMUS) Skip(bs []byte) (int, error) {
	return varint.Int64.Skip(bs)
}

type float32SliceMUS struct{}

func (float32SliceMUS) Marshal(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return
}

func (float32SliceMUS) Unmarshal(bs []byte) ([]float32, int, error) {
	r := &recordReader{bs: bs}
	l := r.length(float32Size)
	if r.err != nil || l == 0 {
		return nil, r.n, r.err
	}
	v := make([]float32, l)
	for i := range v {
		v[i] = read[float32](r, raw.Float32)
	}
	return v, r.n, r.err
}

func (float32SliceMUS) Size(v []float32) int {
	return varint.Int.Size(len(v)) + len(v)*float32Size
}

func (s float32SliceMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type stringMapMUS struct{}

func (stringMapMUS) Marshal(m map[string]string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(m), bs)
	for k, v := range m {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(v, bs[n:])
	}
	return
}

func (stringMapMUS) Unmarshal(bs []byte) (map[string]string, int, error) {
	r := &recordReader{bs: bs}
	// every entry carries at least two length bytes
	l := r.length(2)
	if r.err != nil || l == 0 {
		return nil, r.n, r.err
	}
	m := make(map[string]string, l)
	for range l {
		k := read[string](r, ord.String)
		v := read[string](r, ord.String)
		if r.err != nil {
			return nil, r.n, r.err
		}
		m[k] = v
	}
	return m, r.n, nil
}

func (stringMapMUS) Size(m map[string]string) (size int) {
	size = varint.Int.Size(len(m))
	for k, v := range m {
		size += ord.String.Size(k) + ord.String.Size(v)
	}
	return
}

func (s stringMapMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type generationMetadataPtrMUS struct{}

func (generationMetadataPtrMUS) Marshal(m *GenerationMetadata, bs []byte) (n int) {
	n = ord.Bool.Marshal(m != nil, bs)
	if m == nil {
		return
	}
	n += raw.Float64.Marshal(m.Temperature, bs[n:])
	n += varint.Int.Marshal(m.MaxTokens, bs[n:])
	n += ord.Bool.Marshal(m.UsedRetrieval, bs[n:])
	n += ord.Bool.Marshal(m.Interrupted, bs[n:])
	n += ord.String.Marshal(m.Model, bs[n:])
	return
}

func (generationMetadataPtrMUS) Unmarshal(bs []byte) (*GenerationMetadata, int, error) {
	r := &recordReader{bs: bs}
	if present := read[bool](r, ord.Bool); r.err != nil || !present {
		return nil, r.n, r.err
	}
	m := &GenerationMetadata{}
	m.Temperature = read[float64](r, raw.Float64)
	m.MaxTokens = read[int](r, varint.Int)
	m.UsedRetrieval = read[bool](r, ord.Bool)
	m.Interrupted = read[bool](r, ord.Bool)
	m.Model = read[string](r, ord.String)
	if r.err != nil {
		return nil, r.n, r.err
	}
	return m, r.n, nil
}

func (generationMetadataPtrMUS) Size(m *GenerationMetadata) (size int) {
	size = ord.Bool.Size(m != nil)
	if m == nil {
		return
	}
	return size + raw.Float64.Size(m.Temperature) + varint.Int.Size(m.MaxTokens) +
		ord.Bool.Size(m.UsedRetrieval) + ord.Bool.Size(m.Interrupted) + ord.String.Size(m.Model)
}

func (s generationMetadataPtrMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// Document

type documentMUS struct{}

func (documentMUS) Marshal(d Document, bs []byte) (n int) {
	n = IDMUS.Marshal(d.ID, bs)
	n += ord.String.Marshal(d.OwnerID, bs[n:])
	n += ord.String.Marshal(d.Filename, bs[n:])
	n += ord.String.Marshal(d.Locator, bs[n:])
	n += ord.String.Marshal(d.FileType, bs[n:])
	n += varint.Int64.Marshal(d.Size, bs[n:])
	n += ord.String.Marshal(string(d.Status), bs[n:])
	n += metaMUS.Marshal(d.Metadata, bs[n:])
	n += timeMUS.Marshal(d.CreatedAt, bs[n:])
	n += timeMUS.Marshal(d.UpdatedAt, bs[n:])
	return
}

func (documentMUS) Unmarshal(bs []byte) (d Document, n int, err error) {
	r := &recordReader{bs: bs}
	d.ID = read[ID](r, IDMUS)
	d.OwnerID = read[string](r, ord.String)
	d.Filename = read[string](r, ord.String)
	d.Locator = read[string](r, ord.String)
	d.FileType = read[string](r, ord.String)
	d.Size = read[int64](r, varint.Int64)
	d.Status = DocumentStatus(read[string](r, ord.String))
	d.Metadata = read[map[string]string](r, metaMUS)
	d.CreatedAt = read[time.Time](r, timeMUS)
	d.UpdatedAt = read[time.Time](r, timeMUS)
	return d, r.n, r.err
}

func (documentMUS) Size(d Document) int {
	return IDMUS.Size(d.ID) +
		ord.String.Size(d.OwnerID) +
		ord.String.Size(d.Filename) +
		ord.String.Size(d.Locator) +
		ord.String.Size(d.FileType) +
		varint.Int64.Size(d.Size) +
		ord.String.Size(string(d.Status)) +
		metaMUS.Size(d.Metadata) +
		timeMUS.Size(d.CreatedAt) +
		timeMUS.Size(d.UpdatedAt)
}

func (s documentMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// Chunk

type chunkMUS struct{}

func (chunkMUS) Marshal(c Chunk, bs []byte) (n int) {
	n = IDMUS.Marshal(c.ID, bs)
	n += IDMUS.Marshal(c.DocumentID, bs[n:])
	n += varint.Int.Marshal(c.Index, bs[n:])
	n += ord.String.Marshal(c.Content, bs[n:])
	n += IDMUS.Marshal(c.ContentHash, bs[n:])
	n += varint.Int.Marshal(c.StartChar, bs[n:])
	n += varint.Int.Marshal(c.EndChar, bs[n:])
	n += varint.Int.Marshal(c.Length, bs[n:])
	n += IDMUS.Marshal(c.EmbeddingID, bs[n:])
	n += timeMUS.Marshal(c.CreatedAt, bs[n:])
	return
}

func (chunkMUS) Unmarshal(bs []byte) (c Chunk, n int, err error) {
	r := &recordReader{bs: bs}
	c.ID = read[ID](r, IDMUS)
	c.DocumentID = read[ID](r, IDMUS)
	c.Index = read[int](r, varint.Int)
	c.Content = read[string](r, ord.String)
	c.ContentHash = read[ID](r, IDMUS)
	c.StartChar = read[int](r, varint.Int)
	c.EndChar = read[int](r, varint.Int)
	c.Length = read[int](r, varint.Int)
	c.EmbeddingID = read[ID](r, IDMUS)
	c.CreatedAt = read[time.Time](r, timeMUS)
	return c, r.n, r.err
}

func (chunkMUS) Size(c Chunk) int {
	return IDMUS.Size(c.ID) +
		IDMUS.Size(c.DocumentID) +
		varint.Int.Size(c.Index) +
		ord.String.Size(c.Content) +
		IDMUS.Size(c.ContentHash) +
		varint.Int.Size(c.StartChar) +
		varint.Int.Size(c.EndChar) +
		varint.Int.Size(c.Length) +
		IDMUS.Size(c.EmbeddingID) +
		timeMUS.Size(c.CreatedAt)
}

func (s chunkMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// Embedding

type embeddingMUS struct{}

func (embeddingMUS) Marshal(e Embedding, bs []byte) (n int) {
	n = IDMUS.Marshal(e.ID, bs)
	n += IDMUS.Marshal(e.ChunkID, bs[n:])
	n += vectorMUS.Marshal(e.Vector, bs[n:])
	n += ord.String.Marshal(e.Model, bs[n:])
	n += timeMUS.Marshal(e.CreatedAt, bs[n:])
	return
}

func (embeddingMUS) Unmarshal(bs []byte) (e Embedding, n int, err error) {
	r := &recordReader{bs: bs}
	e.ID = read[ID](r, IDMUS)
	e.ChunkID = read[ID](r, IDMUS)
	e.Vector = read[[]float32](r, vectorMUS)
	e.Model = read[string](r, ord.String)
	e.CreatedAt = read[time.Time](r, timeMUS)
	return e, r.n, r.err
}

func (embeddingMUS) Size(e Embedding) int {
	return IDMUS.Size(e.ID) +
		IDMUS.Size(e.ChunkID) +
		vectorMUS.Size(e.Vector) +
		ord.String.Size(e.Model) +
		timeMUS.Size(e.CreatedAt)
}

func (s embeddingMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// Conversation

type conversationMUS struct{}

func (conversationMUS) Marshal(c Conversation, bs []byte) (n int) {
	n = IDMUS.Marshal(c.ID, bs)
	n += ord.String.Marshal(c.OwnerID, bs[n:])
	n += ord.String.Marshal(c.Title, bs[n:])
	n += timeMUS.Marshal(c.CreatedAt, bs[n:])
	n += timeMUS.Marshal(c.UpdatedAt, bs[n:])
	return
}

func (conversationMUS) Unmarshal(bs []byte) (c Conversation, n int, err error) {
	r := &recordReader{bs: bs}
	c.ID = read[ID](r, IDMUS)
	c.OwnerID = read[string](r, ord.String)
	c.Title = read[string](r, ord.String)
	c.CreatedAt = read[time.Time](r, timeMUS)
	c.UpdatedAt = read[time.Time](r, timeMUS)
	return c, r.n, r.err
}

func (conversationMUS) Size(c Conversation) int {
	return IDMUS.Size(c.ID) +
		ord.String.Size(c.OwnerID) +
		ord.String.Size(c.Title) +
		timeMUS.Size(c.CreatedAt) +
		timeMUS.Size(c.UpdatedAt)
}

func (s conversationMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// Message

type messageMUS struct{}

func (messageMUS) Marshal(m Message, bs []byte) (n int) {
	n = IDMUS.Marshal(m.ID, bs)
	n += IDMUS.Marshal(m.ConversationID, bs[n:])
	n += varint.Int.Marshal(int(m.Role), bs[n:])
	n += ord.String.Marshal(m.Content, bs[n:])
	n += genMetaMUS.Marshal(m.Metadata, bs[n:])
	n += timeMUS.Marshal(m.CreatedAt, bs[n:])
	return
}

// Unmarshal rejects roles other than user and assistant.
func (messageMUS) Unmarshal(bs []byte) (m Message, n int, err error) {
	r := &recordReader{bs: bs}
	m.ID = read[ID](r, IDMUS)
	m.ConversationID = read[ID](r, IDMUS)
	m.Role = Role(read[int](r, varint.Int))
	if r.err == nil {
		r.err = ValidateRole(m.Role)
	}
	m.Content = read[string](r, ord.String)
	m.Metadata = read[*GenerationMetadata](r, genMetaMUS)
	m.CreatedAt = read[time.Time](r, timeMUS)
	return m, r.n, r.err
}

func (messageMUS) Size(m Message) int {
	return IDMUS.Size(m.ID) +
		IDMUS.Size(m.ConversationID) +
		varint.Int.Size(int(m.Role)) +
		ord.String.Size(m.Content) +
		genMetaMUS.Size(m.Metadata) +
		timeMUS.Size(m.CreatedAt)
}

func (s messageMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// Checkpoint

type checkpointMUS struct{}

func (checkpointMUS) Marshal(c Checkpoint, bs []byte) (n int) {
	n = ord.String.Marshal(c.ProcessorType, bs)
	n += IDMUS.Marshal(c.LastID, bs[n:])
	n += timeMUS.Marshal(c.UpdatedAt, bs[n:])
	return
}

func (checkpointMUS) Unmarshal(bs []byte) (c Checkpoint, n int, err error) {
	r := &recordReader{bs: bs}
	c.ProcessorType = read[string](r, ord.String)
	c.LastID = read[ID](r, IDMUS)
	c.UpdatedAt = read[time.Time](r, timeMUS)
	return c, r.n, r.err
}

func (checkpointMUS) Size(c Checkpoint) int {
	return ord.String.Size(c.ProcessorType) +
		IDMUS.Size(c.LastID) +
		timeMUS.Size(c.UpdatedAt)
}

func (s checkpointMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}
