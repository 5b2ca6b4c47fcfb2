// Package protocol implements the wire grammar shared by the TCP and
// WebSocket transports.
//
// Requests are `COMMAND:FIELD_1:...:FIELD_n` where only the final field may
// contain the delimiter (it is the rest of the request, never re-split).
// Responses are `OK:payload` or `FAIL:reason`.
package protocol

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"memoserv/internal/store"
)

const (
	StatusOK   = "OK"
	StatusFail = "FAIL"

	// Delimiter separates the command name and fields in a request.
	Delimiter = ":"

	// FieldSep separates the columns of a serialized memo row.
	FieldSep = "\t"
)

// ParseRequest splits a raw request into its command name and the
// remainder. The remainder may be empty for commands without fields.
func ParseRequest(raw string) (command, rest string, ok bool) {
	raw = strings.TrimRight(raw, "\r\n\x00")
	command, rest, _ = strings.Cut(raw, Delimiter)
	if command == "" {
		return "", "", false
	}
	return command, rest, true
}

// SplitFields splits rest into at most n delimited fields; the nth field is
// the remainder verbatim. Fewer than n fields are returned as-is, the
// caller checks arity.
func SplitFields(rest string, n int) []string {
	if rest == "" {
		return nil
	}
	return strings.SplitN(rest, Delimiter, n)
}

// TrimLeadingGarbage strips whitespace, control characters, and broken
// UTF-8 from the front of a free-text field. Some client transports are not
// message-boundary-safe and leak framing bytes into the first field.
func TrimLeadingGarbage(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		if r == '�' || r < 0x20 || unicode.IsSpace(r) {
			s = s[size:]
			continue
		}
		break
	}
	return s
}

// OK wraps a payload in the success envelope.
func OK(payload string) string {
	return StatusOK + Delimiter + payload
}

// Fail wraps a reason in the failure envelope.
func Fail(reason string) string {
	return StatusFail + Delimiter + reason
}

// FormatMemo serializes a full memo as a single tab-delimited line:
// id, created_at, updated_at, title, body. Bodies are rejected at write
// time if they contain tab or newline, so the row stays one line.
func FormatMemo(m store.Memo) string {
	return fmt.Sprintf("%d%s%s%s%s%s%s%s%s",
		m.ID, FieldSep,
		m.CreatedAt.Format(store.TimeLayout), FieldSep,
		m.UpdatedAt.Format(store.TimeLayout), FieldSep,
		m.Title, FieldSep,
		m.Body)
}

// FormatSummaries serializes list results as newline-separated rows of
// id, created_at, updated_at, title. An empty list is an empty payload.
func FormatSummaries(summaries []store.MemoSummary) string {
	rows := make([]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, fmt.Sprintf("%d%s%s%s%s%s%s",
			s.ID, FieldSep,
			s.CreatedAt.Format(store.TimeLayout), FieldSep,
			s.UpdatedAt.Format(store.TimeLayout), FieldSep,
			s.Title))
	}
	return strings.Join(rows, "\n")
}
