package gojaremote

import (
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// StackFrame is one parsed frame of a remote stack trace.
type StackFrame struct {
	FunctionName string
	FileName     string
	Line         int
	Column       int
}

// String formats the frame as fn@file:line:col.
func (f StackFrame) String() string {
	return f.FunctionName + "@" + f.FileName + ":" + strconv.Itoa(f.Line) + ":" + strconv.Itoa(f.Column)
}

// stackFramePattern splits a frame at its last '@'; the file name runs up to
// the final two colon-separated integers.
var stackFramePattern = regexp.MustCompile(`(?i)^(.*)@([^@]*):(\d+):(\d+)$`)

// ParseStackFrames parses a stack trace of fn@file:line:col lines. Blank and
// unmatched lines produce no frame, as do frames whose numbers overflow an
// int. The result is empty, not nil, for a trace with no frames.
func ParseStackFrames(text string) []StackFrame {
	frames := []StackFrame{}
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := stackFramePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNo, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}
		column, err := strconv.Atoi(m[4])
		if err != nil {
			continue
		}
		frames = append(frames, StackFrame{
			FunctionName: m[1],
			FileName:     m[2],
			Line:         lineNo,
			Column:       column,
		})
	}
	return frames
}

// combineStacks joins the remote and host traces, reporting false when both
// are empty.
func combineStacks(remote, host string) (string, bool) {
	switch {
	case remote == "" && host == "":
		return "", false
	case remote == "":
		return host, true
	case host == "":
		return remote, true
	default:
		return remote + "\n" + host, true
	}
}

// callerStack formats the calling goroutine's stack, skipping skip frames
// above callerStack itself.
func callerStack(skip int) string {
	var pcs [32]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			if b.Len() != 0 {
				b.WriteByte('\n')
			}
			b.WriteString(frame.Function)
			b.WriteString(" (")
			b.WriteString(frame.File)
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(frame.Line))
			b.WriteByte(')')
		}
		if !more {
			break
		}
	}
	return b.String()
}
