// Package export renders memo snapshots into downloadable documents.
// Formats: MD, TXT, JSON, CSV, XML.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"memoserv/internal/store"
)

// ErrUnsupported is returned for a format name outside the supported set.
var ErrUnsupported = errors.New("unsupported export format")

const (
	FormatMD   = "MD"
	FormatTXT  = "TXT"
	FormatJSON = "JSON"
	FormatCSV  = "CSV"
	FormatXML  = "XML"
)

// utf8BOM makes Excel detect UTF-8 in CSV downloads.
const utf8BOM = "\xEF\xBB\xBF"

type jsonMemo struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type xmlMemo struct {
	ID        int    `xml:"id"`
	Title     string `xml:"title"`
	Body      string `xml:"body"`
	CreatedAt string `xml:"created_at"`
	UpdatedAt string `xml:"updated_at"`
}

type xmlMemos struct {
	XMLName xml.Name  `xml:"memos"`
	Memos   []xmlMemo `xml:"memo"`
}

// RenderOne serializes a single memo in the given format.
func RenderOne(m store.Memo, format string) (string, error) {
	return RenderMany([]store.Memo{m}, format)
}

// RenderMany serializes a sequence of memos in the given format.
func RenderMany(memos []store.Memo, format string) (string, error) {
	switch format {
	case FormatMD:
		return renderMD(memos), nil
	case FormatTXT:
		return renderTXT(memos), nil
	case FormatJSON:
		return renderJSON(memos)
	case FormatCSV:
		return renderCSV(memos), nil
	case FormatXML:
		return renderXML(memos)
	default:
		return "", ErrUnsupported
	}
}

func renderMD(memos []store.Memo) string {
	var b strings.Builder
	for i, m := range memos {
		fmt.Fprintf(&b, "---\nid: %d\ncreated_at: %s\nupdated_at: %s\n---\n\n# %s\n\n%s\n",
			m.ID,
			m.CreatedAt.Format(store.TimeLayout),
			m.UpdatedAt.Format(store.TimeLayout),
			m.Title,
			m.Body)
		if i < len(memos)-1 {
			b.WriteString("\n---\n\n")
		}
	}
	return b.String()
}

func renderTXT(memos []store.Memo) string {
	var b strings.Builder
	for i, m := range memos {
		fmt.Fprintf(&b, "ID: %d\nCreated: %s\nUpdated: %s\nTitle: %s\n\n--------------------\n%s\n",
			m.ID,
			m.CreatedAt.Format(store.TimeLayout),
			m.UpdatedAt.Format(store.TimeLayout),
			m.Title,
			m.Body)
		if i < len(memos)-1 {
			b.WriteString("\n====================\n\n")
		}
	}
	return b.String()
}

func renderJSON(memos []store.Memo) (string, error) {
	out := make([]jsonMemo, 0, len(memos))
	for _, m := range memos {
		out = append(out, jsonMemo{
			ID:        m.ID,
			Title:     m.Title,
			Body:      m.Body,
			CreatedAt: m.CreatedAt.Format(store.TimeLayout),
			UpdatedAt: m.UpdatedAt.Format(store.TimeLayout),
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func renderCSV(memos []store.Memo) string {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	w := csv.NewWriter(&buf)
	w.Write([]string{"id", "title", "body", "created_at", "updated_at"})
	for _, m := range memos {
		w.Write([]string{
			fmt.Sprintf("%d", m.ID),
			m.Title,
			m.Body,
			// Forces Excel to treat timestamps as text.
			fmt.Sprintf(`="%s"`, m.CreatedAt.Format(store.TimeLayout)),
			fmt.Sprintf(`="%s"`, m.UpdatedAt.Format(store.TimeLayout)),
		})
	}
	w.Flush()
	return buf.String()
}

func renderXML(memos []store.Memo) (string, error) {
	root := xmlMemos{Memos: make([]xmlMemo, 0, len(memos))}
	for _, m := range memos {
		root.Memos = append(root.Memos, xmlMemo{
			ID:        m.ID,
			Title:     m.Title,
			Body:      m.Body,
			CreatedAt: m.CreatedAt.Format(store.TimeLayout),
			UpdatedAt: m.UpdatedAt.Format(store.TimeLayout),
		})
	}
	data, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
