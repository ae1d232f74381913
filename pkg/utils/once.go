package utils

import "sync"

// OnceValue is a write-once cell. Get blocks until the first Set; later Sets
// are ignored and report false.
type OnceValue[T any] struct {
	once  sync.Once
	value T
	done  chan struct{}
}

func NewOnceValue[T any]() *OnceValue[T] {
	return &OnceValue[T]{
		done: make(chan struct{}),
	}
}

func (ov *OnceValue[T]) Set(value T) bool {
	set := false
	ov.once.Do(func() {
		ov.value = value
		close(ov.done)
		set = true
	})
	return set
}

func (ov *OnceValue[T]) Get() T {
	<-ov.done
	return ov.value
}

// Done is closed once a value has been set.
func (ov *OnceValue[T]) Done() <-chan struct{} {
	return ov.done
}
