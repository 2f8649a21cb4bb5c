package geoloc

import "fmt"

// defaultIndexSize is the initial slot count of a new Index.
const defaultIndexSize = 128

// indexSlot is one cell of the open-addressing table.
type indexSlot struct {
	word  string
	value int
	used  bool
}

// Index maps feature strings to integers with an open-addressing table.
//
// Inserted words receive dense ids in insertion order (0, 1, 2, ...). The same
// structure doubles as a counter table through SetValue and IncValue, which is
// how the KL classifier counts repeated features in a document. An Index is used
// in one of the two roles, never both. Deletion is not supported.
//
// The table is rehashed to twice its size as soon as more than half of the
// slots are occupied, so a probe always finds an empty slot.
type Index struct {
	table []indexSlot
	n     int
}

// NewIndex creates an Index with the given initial number of slots.
func NewIndex(size int) *Index {
	if size < 2 {
		size = defaultIndexSize
	}
	return &Index{table: make([]indexSlot, size)}
}

// hashWord is djb2.
func hashWord(word string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(word); i++ {
		h = h<<5 + h + uint32(word[i])
	}
	return h
}

// locate returns the slot holding word, or the empty slot where it would go.
// Panics if the table has no empty slot; the load factor makes that impossible
// unless rehashing is broken.
func (ix *Index) locate(word string) (int, bool) {
	size := len(ix.table)
	pos := int(hashWord(word) % uint32(size))
	for j := 0; j < size; j++ {
		s := &ix.table[pos]
		if !s.used {
			return pos, false
		}
		if s.word == word {
			return pos, true
		}
		pos++
		if pos >= size {
			pos = 0
		}
	}
	panic(fmt.Sprintf("geoloc: index table full (%d slots, %d entries)", size, ix.n))
}

// Find returns the value stored for word.
func (ix *Index) Find(word string) (int, bool) {
	pos, ok := ix.locate(word)
	if !ok {
		return -1, false
	}
	return ix.table[pos].value, true
}

// Contains reports whether word was inserted.
func (ix *Index) Contains(word string) bool {
	_, ok := ix.locate(word)
	return ok
}

// Insert adds word and returns its id. Inserting a known word returns the
// existing id.
func (ix *Index) Insert(word string) int {
	pos, ok := ix.locate(word)
	if ok {
		return ix.table[pos].value
	}
	id := ix.n
	ix.place(pos, word, id)
	return id
}

// SetValue stores value for word, adding word if needed.
func (ix *Index) SetValue(word string, value int) {
	pos, ok := ix.locate(word)
	if ok {
		ix.table[pos].value = value
		return
	}
	ix.place(pos, word, value)
}

// IncValue increments the counter for word, starting from 1 for a new word.
func (ix *Index) IncValue(word string) int {
	pos, ok := ix.locate(word)
	if ok {
		ix.table[pos].value++
		return ix.table[pos].value
	}
	ix.place(pos, word, 1)
	return 1
}

// Len returns the number of entries.
func (ix *Index) Len() int { return ix.n }

func (ix *Index) place(pos int, word string, value int) {
	ix.table[pos] = indexSlot{word: word, value: value, used: true}
	ix.n++
	if ix.n > len(ix.table)/2 {
		ix.rehash()
	}
}

// rehash re-inserts every live entry into a table twice the size.
func (ix *Index) rehash() {
	old := ix.table
	ix.table = make([]indexSlot, len(old)*2)
	for _, s := range old {
		if !s.used {
			continue
		}
		pos, _ := ix.locate(s.word)
		ix.table[pos] = s
	}
}
