package events

import "sync"

type message struct {
	Kind    string
	Subject string
	Data    []byte
	next    *message
}

// buffer is a FIFO of pending messages. When full, the oldest message is dropped.
type buffer struct {
	lock    sync.Mutex
	head    *message
	tail    *message
	size    int
	limit   int
	dropped int
}

func newBuffer(limit int) *buffer {
	return &buffer{limit: limit}
}

// PushBack appends msg and reports whether an older message was dropped to make room.
func (b *buffer) PushBack(msg *message) bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.head == nil {
		b.head = msg
		b.tail = msg
	} else {
		b.tail.next = msg
		b.tail = msg
	}
	b.size++

	if b.limit > 0 && b.size > b.limit {
		b.head = b.head.next
		b.size--
		b.dropped++
		return true
	}
	return false
}

func (b *buffer) Pop() *message {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.head == nil {
		return nil
	}
	tmp := b.head
	b.head = b.head.next
	if b.head == nil {
		// removing the last one
		b.tail = nil
	}
	tmp.next = nil
	b.size--
	return tmp
}

func (b *buffer) Size() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.size
}

func (b *buffer) Dropped() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.dropped
}
