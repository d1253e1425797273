package log

import "strconv"

// callerInfo caches the formatted call site for one program counter, so the
// string is built once per site rather than once per line.
type callerInfo struct {
	file     string
	function string
	line     int
	text     string
}

var unknownCaller = &callerInfo{
	file:     "unknown",
	function: "unknown",
	text:     "unknown:0 unknown",
}

func newCallerInfo(file, function string, line int) *callerInfo {
	return &callerInfo{
		file:     file,
		function: function,
		line:     line,
		text:     file + ":" + strconv.Itoa(line) + " " + function,
	}
}

func (c *callerInfo) String() string {
	return c.text
}
