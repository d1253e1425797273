package log

import (
	"bytes"
	"encoding/json"
	"time"
)

// LogEvent is one in-flight log line. Field methods append straight into the
// JSON buffer as the fluent chain runs; Msg seals the line and hands the
// event back to the owning logger.
type LogEvent struct {
	buf    *bytes.Buffer
	logger Logger
	level  Level
}

func newEvent(l Logger) *LogEvent {
	e := &LogEvent{
		logger: l,
		level:  DebugLevel,
		buf:    &bytes.Buffer{},
	}
	e.buf.Grow(1024)
	return e
}

// Reset prepares a pooled event for reuse. A buffer that grew past 4KB is
// replaced so one oversized line does not pin memory for the pool's
// lifetime.
func (e *LogEvent) Reset() {
	if e.buf.Cap() > 4096 {
		e.buf = &bytes.Buffer{}
		e.buf.Grow(1024)
	} else {
		e.buf.Reset()
	}
	e.level = DebugLevel
	appendBeginMarker(e.buf)
}

// Time appends v formatted as "2006-01-02 15:04:05.000". The layout is fixed
// width, so the digits are written into a stack buffer instead of going
// through time.Format on every line.
func (e *LogEvent) Time(k string, v *time.Time) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)

	year, month, day := v.Date()
	hour, min, sec := v.Clock()

	var b [23]byte
	pad4(b[0:4], year)
	b[4] = '-'
	pad2(b[5:7], int(month))
	b[7] = '-'
	pad2(b[8:10], day)
	b[10] = ' '
	pad2(b[11:13], hour)
	b[13] = ':'
	pad2(b[14:16], min)
	b[16] = ':'
	pad2(b[17:19], sec)
	b[19] = '.'
	pad3(b[20:23], v.Nanosecond()/1e6)

	e.buf.WriteByte('"')
	e.buf.Write(b[:])
	e.buf.WriteByte('"')
	return e
}

func pad2(dst []byte, v int) {
	dst[0] = byte('0' + v/10)
	dst[1] = byte('0' + v%10)
}

func pad3(dst []byte, v int) {
	dst[0] = byte('0' + v/100)
	dst[1] = byte('0' + (v/10)%10)
	dst[2] = byte('0' + v%10)
}

func pad4(dst []byte, v int) {
	dst[0] = byte('0' + v/1000)
	dst[1] = byte('0' + (v/100)%10)
	dst[2] = byte('0' + (v/10)%10)
	dst[3] = byte('0' + v%10)
}

// Str appends a string field.
func (e *LogEvent) Str(k, v string) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)
	appendString(e.buf, v)
	return e
}

// Int appends an int field.
func (e *LogEvent) Int(k string, v int) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)
	appendInt64(e.buf, int64(v))
	return e
}

// Int64 appends an int64 field.
func (e *LogEvent) Int64(k string, v int64) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)
	appendInt64(e.buf, v)
	return e
}

// Uint8 appends a uint8 field. Packet types and orders travel as uint8, so
// header marshaling leans on this.
func (e *LogEvent) Uint8(k string, v uint8) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)
	appendUint64(e.buf, uint64(v))
	return e
}

// Uint16 appends a uint16 field. Request IDs are uint16 on the wire.
func (e *LogEvent) Uint16(k string, v uint16) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)
	appendUint64(e.buf, uint64(v))
	return e
}

// Err appends v under the "error" key, or null when v is nil.
func (e *LogEvent) Err(v error) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, "error")
	if v == nil {
		appendNil(e.buf)
	} else {
		appendString(e.buf, v.Error())
	}
	return e
}

// LogObjectMarshaler lets a type write itself into a log event as a group of
// fields instead of a single value.
type LogObjectMarshaler interface {
	MarshalLogObj(e *LogEvent)
}

// Obj appends a marshalable object as a nested JSON object.
func (e *LogEvent) Obj(k string, v LogObjectMarshaler) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)
	if v == nil {
		appendNil(e.buf)
		return e
	}
	appendBeginMarker(e.buf)
	v.MarshalLogObj(e)
	appendEndMarker(e.buf)
	return e
}

// Any appends an arbitrary value via json.Marshal. Slower than the typed
// methods; meant for values whose type is not known at the call site.
func (e *LogEvent) Any(k string, v any) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)
	b, err := json.Marshal(v)
	if err != nil {
		appendString(e.buf, err.Error())
	} else {
		appendString(e.buf, string(b))
	}
	return e
}

// Msg attaches the final message and flushes the event to the appenders.
func (e *LogEvent) Msg(v string) {
	if e == nil {
		return
	}
	e.Str("msg", v)
	e.End()
}

// End closes the JSON object and hands the event back to the logger, which
// writes it out and returns the event to the pool.
func (e *LogEvent) End() {
	if e == nil {
		return
	}
	appendEndMarker(e.buf)
	appendLineBreak(e.buf)
	e.logger.OnEventEnd(e)
}
