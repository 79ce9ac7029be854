package ordmap

// ListElem is one element of a List, allocated by PushBack/PushFront and
// holding Value alongside its own links, so insertion and removal are
// O(1) rather than the cost of shifting a slice-backed queue.
type ListElem[T any] struct {
	next, prev *ListElem[T]
	list       *List[T]
	Value      T
}

// List is a doubly linked intrusive worklist with O(1) head/tail ops.
type List[T any] struct {
	root ListElem[T] // root.next == head, root.prev == tail
}

// NewList returns an empty list.
func NewList[T any]() *List[T] {
	l := &List[T]{}
	l.root.next = &l.root
	l.root.prev = &l.root
	l.root.list = l
	return l
}

func (l *List[T]) lazyInit() {
	if l.root.next == nil {
		l.root.next = &l.root
		l.root.prev = &l.root
		l.root.list = l
	}
}

// PushBack appends a new element holding v and returns it.
func (l *List[T]) PushBack(v T) *ListElem[T] {
	l.lazyInit()
	e := &ListElem[T]{Value: v, list: l}
	e.prev = l.root.prev
	e.next = &l.root
	e.prev.next = e
	l.root.prev = e
	return e
}

// PushFront prepends a new element holding v and returns it.
func (l *List[T]) PushFront(v T) *ListElem[T] {
	l.lazyInit()
	e := &ListElem[T]{Value: v, list: l}
	e.next = l.root.next
	e.prev = &l.root
	e.next.prev = e
	l.root.next = e
	return e
}

// Remove detaches e from whatever list it is on. No-op if already removed.
func (e *ListElem[T]) Remove() {
	if e.list == nil {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next, e.prev, e.list = nil, nil, nil
}

// Front returns the head element, or nil if the list is empty.
func (l *List[T]) Front() *ListElem[T] {
	l.lazyInit()
	if l.root.next == &l.root {
		return nil
	}
	return l.root.next
}

// Back returns the tail element, or nil if the list is empty.
func (l *List[T]) Back() *ListElem[T] {
	l.lazyInit()
	if l.root.prev == &l.root {
		return nil
	}
	return l.root.prev
}

// Next returns the following element, or nil at the tail. Once the
// receiver has been removed from the list it returns nil, since Remove
// clears e's own links; callers that need deletion-tolerant iteration
// should capture Next before calling Remove.
func (e *ListElem[T]) Next() *ListElem[T] {
	if e.next == nil || e.next == &e.list.root {
		return nil
	}
	return e.next
}

// Prev returns the preceding element, or nil at the head.
func (e *ListElem[T]) Prev() *ListElem[T] {
	if e.prev == nil || e.prev == &e.list.root {
		return nil
	}
	return e.prev
}
