package common

import (
	"sync"
)

// Event holds the callbacks registered for a single notification, such as a
// session phase change.
type Event struct {
	mutex     sync.Mutex
	nextID    int
	callbacks map[int]func(data map[string]interface{})
	order     []int
}

// AddCallback registers callback and returns an id usable with RemoveCallback.
func (e *Event) AddCallback(callback func(data map[string]interface{})) int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.callbacks == nil {
		e.callbacks = make(map[int]func(data map[string]interface{}))
	}
	e.nextID++
	e.callbacks[e.nextID] = callback
	e.order = append(e.order, e.nextID)
	return e.nextID
}

// RemoveCallback unregisters the callback with the given id.
func (e *Event) RemoveCallback(id int) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if _, ok := e.callbacks[id]; !ok {
		return
	}
	delete(e.callbacks, id)
	for i, v := range e.order {
		if v == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// Fire calls every callback in registration order. Callbacks run outside the
// lock so they may add or remove callbacks.
func (e *Event) Fire(data map[string]interface{}) {
	e.mutex.Lock()
	callbacks := make([]func(map[string]interface{}), 0, len(e.order))
	for _, id := range e.order {
		callbacks = append(callbacks, e.callbacks[id])
	}
	e.mutex.Unlock()

	for _, callback := range callbacks {
		callback(data)
	}
}

// Len returns the number of callbacks.
func (e *Event) Len() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return len(e.order)
}
