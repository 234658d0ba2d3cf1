package util

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestParseAnchors(t *testing.T) {
	page := `<html><body><pre>
<a href="../">../</a>
<a href="20240101.json.gz">20240101.json.gz</a>
<a href="20240108.json.gz"><b>20240108</b>.json.gz</a>
</pre></body></html>`
	root, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)

	anchors := ParseAnchors(root)
	require.Len(t, anchors, 3)
	assert.Equal(t, "../", anchors[0].Text)
	assert.Equal(t, "20240108.json.gz", anchors[2].Text)
	assert.Equal(t, "20240108.json.gz", anchors[2].Href)
}

func TestParseDumpDate(t *testing.T) {
	d, err := ParseDumpDate("20160104")
	require.NoError(t, err)
	assert.Equal(t, 2016, d.Year())

	for _, bad := range []string{"latest", "2016010", "2016-01-04", "20161304"} {
		_, err := ParseDumpDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestLineReader(t *testing.T) {
	long := strings.Repeat("x", 200_000)
	lr := NewLineReader(strings.NewReader("[\n\n  {\"a\":1},\n"+long+"\n]"), 4096)

	var lines []string
	for {
		b, err := lr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		lines = append(lines, string(b))
	}
	require.Len(t, lines, 4)
	assert.Equal(t, `{"a":1},`, lines[1])
	assert.Len(t, lines[2], 200_000)
	assert.Equal(t, int64(5), lr.Line())
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/nested/out.json"

	require.NoError(t, WriteFileAtomic(path, []byte("one")))
	require.NoError(t, WriteFileAtomic(path, []byte("two")))
	require.NoError(t, IsReadableFile(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	entries, err := os.ReadDir(dir + "/nested")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	assert.Error(t, IsReadableFile(dir), "directories are not dump candidates")
	assert.Error(t, IsReadableFile(dir+"/missing"))
}
