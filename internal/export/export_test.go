package export

import (
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoserv/internal/store"
)

func sampleMemos() []store.Memo {
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	return []store.Memo{
		{
			ID: 1, OwnerID: "alice1", Title: "Groceries", Body: "milk, eggs, bread",
			CreatedAt: created, UpdatedAt: created.Add(time.Hour),
		},
		{
			ID: 2, OwnerID: "alice1", Title: `Quote "day"`, Body: "a <b> & 'c'",
			CreatedAt: created, UpdatedAt: created,
		},
	}
}

func TestRenderUnsupportedFormat(t *testing.T) {
	_, err := RenderOne(sampleMemos()[0], "PDF")
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = RenderMany(sampleMemos(), "docx")
	assert.ErrorIs(t, err, ErrUnsupported, "format names are case-sensitive")
}

func TestRenderJSON(t *testing.T) {
	out, err := RenderMany(sampleMemos(), FormatJSON)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, float64(1), decoded[0]["id"])
	assert.Equal(t, "milk, eggs, bread", decoded[0]["body"])
	assert.Equal(t, "2026-03-10 09:00:00", decoded[0]["created_at"])
	assert.Equal(t, `Quote "day"`, decoded[1]["title"])
}

func TestRenderCSV(t *testing.T) {
	out, err := RenderMany(sampleMemos(), FormatCSV)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "\xEF\xBB\xBF"), "CSV starts with a UTF-8 BOM")
	assert.Contains(t, out, "id,title,body,created_at,updated_at")
	// Timestamps are wrapped so Excel keeps them as text.
	assert.Contains(t, out, `"=""2026-03-10 09:00:00"""`)
	// Embedded quotes are doubled.
	assert.Contains(t, out, `"Quote ""day"""`)
}

func TestRenderXMLEscapes(t *testing.T) {
	out, err := RenderMany(sampleMemos(), FormatXML)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "<memos>"))
	assert.Contains(t, out, "&lt;b&gt;")
	assert.Contains(t, out, "&amp;")

	var decoded struct {
		Memos []struct {
			ID    int    `xml:"id"`
			Title string `xml:"title"`
			Body  string `xml:"body"`
		} `xml:"memo"`
	}
	require.NoError(t, xml.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded.Memos, 2)
	assert.Equal(t, "a <b> & 'c'", decoded.Memos[1].Body)
}

func TestRenderMD(t *testing.T) {
	out, err := RenderOne(sampleMemos()[0], FormatMD)
	require.NoError(t, err)

	assert.Contains(t, out, "id: 1")
	assert.Contains(t, out, "# Groceries")
	assert.Contains(t, out, "milk, eggs, bread")

	many, err := RenderMany(sampleMemos(), FormatMD)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(many, "# "), "one heading per memo")
}

func TestRenderTXT(t *testing.T) {
	out, err := RenderMany(sampleMemos(), FormatTXT)
	require.NoError(t, err)

	assert.Contains(t, out, "ID: 1")
	assert.Contains(t, out, "Title: Groceries")
	assert.Contains(t, out, "====================")
}
