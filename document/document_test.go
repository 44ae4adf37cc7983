package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferAddPreservesOrder(t *testing.T) {
	buffer := NewBuffer()
	buffer.Add([]Document{{ID: 0, Text: "first"}, {ID: 1, Text: "second"}})
	buffer.Add([]Document{{ID: 2, Text: "third"}})

	assert.Equal(t, 3, buffer.Count())

	docs := buffer.Documents()
	assert.Equal(t, "first", docs[0].Text)
	assert.Equal(t, "second", docs[1].Text)
	assert.Equal(t, "third", docs[2].Text)
}

func TestBufferClose(t *testing.T) {
	buffer := NewBuffer()
	buffer.Add([]Document{{ID: "a", Text: "text"}})
	buffer.Close()

	assert.Equal(t, 0, buffer.Count())

	// Close is idempotent
	buffer.Close()
	assert.Equal(t, 0, buffer.Count())
}
