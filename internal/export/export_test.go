package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

func sample() []entity.Record {
	return []entity.Record{
		entity.NewRecord("title", "Widget, large", "price", "9.99", "url", "http://shop/1"),
		entity.NewRecord("title", "Gadget", "price", "4.50", "url", "http://shop/2"),
	}
}

func TestCSV_RoundTripKeepsOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "title,price,url", lines[0])
	assert.Equal(t, `"Widget, large",9.99,http://shop/1`, lines[1])

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i, rec := range got {
		assert.Equal(t, sample()[i].Keys(), rec.Keys())
		want, _ := sample()[i].Get("title")
		title, _ := rec.Get("title")
		assert.Equal(t, want, title)
	}
}

func TestWriteCSV_UnionOfKeysAndNestedValues(t *testing.T) {
	records := []entity.Record{
		entity.NewRecord("name", "a", "tags", []any{"x", "y"}),
		entity.NewRecord("name", "b", "count", 3, "ok", true),
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))

	assert.Equal(t, "name,tags,count,ok\n"+
		`a,"[""x"",""y""]",,`+"\n"+
		"b,,3,true\n", buf.String())
}

func TestJSON_RoundTripKeepsOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sample()))
	assert.Less(t, strings.Index(buf.String(), `"title"`), strings.Index(buf.String(), `"price"`))

	got, err := ReadJSON(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"title", "price", "url"}, got[1].Keys())
}

func TestWriteJSON_EmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	assert.Equal(t, "text/csv; charset=utf-8", f.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}
