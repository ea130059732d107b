package buffer

import (
	"sync"
)

const INVALID_FRAME_ID = -1

// NewLruReplacer keeps unfixed frames in a doubly linked list, most recently
// unfixed at the front. Victims are taken from the back.
func NewLruReplacer(capacity int) *lruReplacer {
	head := &lruNode{frameId: INVALID_FRAME_ID}
	tail := &lruNode{frameId: INVALID_FRAME_ID}

	head.next = tail
	tail.prev = head

	return &lruReplacer{
		nodeStore: make(map[int]*lruNode, capacity),
		head:      head,
		tail:      tail,
	}
}

func (lru *lruReplacer) unpin(frameId int) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if node, ok := lru.nodeStore[frameId]; ok {
		lru.removeNode(node)
	}
	lru.addNode(&lruNode{frameId: frameId})
}

func (lru *lruReplacer) pin(frameId int) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if node, ok := lru.nodeStore[frameId]; ok {
		lru.removeNode(node)
	}
}

func (lru *lruReplacer) victim() (int, bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	node := lru.tail.prev
	if node == lru.head {
		return INVALID_FRAME_ID, false
	}

	lru.removeNode(node)
	return node.frameId, true
}

func (lru *lruReplacer) size() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	return len(lru.nodeStore)
}

func (lru *lruReplacer) removeNode(node *lruNode) {
	back := node.prev
	front := node.next

	back.next = front
	front.prev = back

	delete(lru.nodeStore, node.frameId)
}

func (lru *lruReplacer) addNode(newNode *lruNode) {
	// add node to the front of the doubly linked list
	tmp := lru.head.next
	lru.head.next = newNode
	newNode.prev = lru.head
	newNode.next = tmp
	tmp.prev = newNode

	lru.nodeStore[newNode.frameId] = newNode
}

type lruReplacer struct {
	mu        sync.Mutex
	nodeStore map[int]*lruNode
	head      *lruNode
	tail      *lruNode
}

type lruNode struct {
	prev    *lruNode
	next    *lruNode
	frameId int
}
