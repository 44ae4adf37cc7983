// Package document defines the document model and the staging buffer used by
// the gateway to batch documents ahead of an index build or upsert.
package document

// Document is the canonical (id, text, object) triple accepted by the index.
//
// ID is either caller-supplied or auto-assigned by the gateway as a
// monotonically increasing sequence. Object carries an optional structured
// record associated with the text; the index only consumes Text.
type Document struct {
	ID     any    `json:"id"`
	Text   string `json:"text"`
	Object any    `json:"object,omitempty"`
}

// Buffer is an ordered, append-only staging area for documents pending
// indexing. The gateway owns exactly one buffer at a time and mutates it only
// while holding the mutation lock, so Buffer itself performs no locking.
type Buffer struct {
	documents []Document
	closed    bool
}

// NewBuffer creates an empty staging buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Add appends a batch of documents in call order.
func (b *Buffer) Add(batch []Document) {
	b.documents = append(b.documents, batch...)
}

// Count returns the number of buffered documents.
func (b *Buffer) Count() int {
	return len(b.documents)
}

// Documents returns the buffered documents in insertion order. The returned
// slice is the buffer's backing store; callers must not retain it across a
// Close.
func (b *Buffer) Documents() []Document {
	return b.documents
}

// Close releases the buffered documents. Closing an already closed buffer is
// a no-op.
func (b *Buffer) Close() {
	if b.closed {
		return
	}
	b.documents = nil
	b.closed = true
}
