package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventCallbacks(t *testing.T) {
	var e Event
	var got []string

	first := e.AddCallback(func(data map[string]interface{}) {
		got = append(got, "first:"+data["current"].(string))
	})
	e.AddCallback(func(data map[string]interface{}) {
		got = append(got, "second:"+data["current"].(string))
	})
	assert.Equal(t, 2, e.Len())

	e.Fire(map[string]interface{}{"current": "APDU_LOOP"})
	assert.Equal(t, []string{"first:APDU_LOOP", "second:APDU_LOOP"}, got)

	e.RemoveCallback(first)
	e.RemoveCallback(first)
	assert.Equal(t, 1, e.Len())

	got = nil
	e.Fire(map[string]interface{}{"current": "CONNECT"})
	assert.Equal(t, []string{"second:CONNECT"}, got)
}

func TestEventCallbackMayRemoveItself(t *testing.T) {
	var e Event
	calls := 0
	var id int
	id = e.AddCallback(func(map[string]interface{}) {
		calls++
		e.RemoveCallback(id)
	})

	e.Fire(nil)
	e.Fire(nil)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, e.Len())
}

func TestTimeoutsApplyDefaults(t *testing.T) {
	tm := &Timeouts{Submit: 1}
	tm.ApplyDefaults()
	d := NewTimeouts()
	assert.Equal(t, Timeouts{Submit: 1, CardWait: d.CardWait, Handshake: d.Handshake, Idle: d.Idle}, *tm)
}
