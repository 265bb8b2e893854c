package inputprocessor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	p, err := Parse("is this a question?\n\nthe sky is blue\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"is this a question?", "the sky is blue"}, p.Texts)

	p, err = Parse(`["a", "b"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, p.Texts)

	p, err = Parse(`{"a": "red apple"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "red apple"}, p.Items)

	_, err = Parse(`{"a": 1}`)
	assert.Error(t, err)
}

func TestProcess_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texts.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\n"), 0o644))

	p, err := New().Process(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
}

func TestProcess_Stdin(t *testing.T) {
	proc := &defaultProcessor{client: http.DefaultClient, stdin: strings.NewReader(`{"k":"v"}`)}
	p, err := proc.Process(context.Background(), StdinSource)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "v"}, p.Items)
}

func TestProcess_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`["from url"]`))
	}))
	defer srv.Close()

	p, err := New().Process(context.Background(), srv.URL+"/texts.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"from url"}, p.Texts)

	_, err = New().Process(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestProcess_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := New().Process(context.Background(), dir)
	assert.Error(t, err)

	_, err = New().Process(context.Background(), filepath.Join(dir, "nope.txt"))
	assert.Error(t, err)

	bin := filepath.Join(dir, "x.bin")
	require.NoError(t, os.WriteFile(bin, []byte{0, 1, 2}, 0o644))
	_, err = New().Process(context.Background(), bin)
	assert.Error(t, err)
}
