package static

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

const secret = "top secret"

// newTestTree は次のツリーを作成し、www ディレクトリを返す
//
//	<tmp>/secret.txt
//	<tmp>/www/index.html
//	<tmp>/www/a/index.html
//	<tmp>/www/a/b.css
//	<tmp>/www/IMG.PNG
//	<tmp>/www/blob.dat
//	<tmp>/www/sub/b.txt
//	<tmp>/www/sub/c/
func newTestTree(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "www")

	files := map[string]string{
		"secret.txt":         secret,
		"www/index.html":     "<h1>home</h1>",
		"www/a/index.html":   "<h1>a</h1>",
		"www/a/b.css":        "body { color: red; }\n",
		"www/IMG.PNG":        "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR",
		"www/blob.dat":       "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR",
		"www/sub/b.txt":      "b",
		"www/sub/c/.gitkeep": "",
	}
	for name, content := range files {
		p := filepath.Join(base, filepath.FromSlash(name))
		assert.NilError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		assert.NilError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func newTestHandler(t *testing.T, root string, mutate func(*Options)) *Handler {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	opts := Options{
		Root:      root,
		IndexFile: "index.html",
		Types:     DefaultMIMETable(),
		Logger:    logger,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h, err := New(opts)
	assert.NilError(t, err)
	return h
}

func do(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", nil)
	// URL パーサーに正規化させないよう、デコード済みのパスを直接設定する
	req.URL.Path = path
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeFile(t *testing.T) {
	root := newTestTree(t)
	h := newTestHandler(t, root, nil)

	want, err := os.ReadFile(filepath.Join(root, "a", "b.css"))
	assert.NilError(t, err)

	rec := do(h, http.MethodGet, "/a/b.css")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Check(t, is.Equal(rec.Header().Get("Content-Type"), "text/css"))
	assert.Check(t, is.Equal(rec.Header().Get("Content-Length"), "21"))
	assert.Check(t, is.DeepEqual(rec.Body.Bytes(), want))
}

func TestServeHead(t *testing.T) {
	h := newTestHandler(t, newTestTree(t), nil)

	rec := do(h, http.MethodHead, "/a/b.css")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Check(t, is.Equal(rec.Header().Get("Content-Type"), "text/css"))
	assert.Check(t, is.Equal(rec.Header().Get("Content-Length"), "21"))
	assert.Check(t, is.Equal(rec.Body.Len(), 0))
}

func TestContentTypes(t *testing.T) {
	h := newTestHandler(t, newTestTree(t), nil)

	testCases := []struct {
		path  string
		ctype string
	}{
		{"/index.html", "text/html"},
		{"/IMG.PNG", "image/png"},
		{"/blob.dat", DefaultContentType},
		{"/sub/b.txt", DefaultContentType},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			rec := do(h, http.MethodGet, tc.path)
			assert.Equal(t, rec.Code, http.StatusOK)
			assert.Check(t, is.Equal(rec.Header().Get("Content-Type"), tc.ctype))
		})
	}
}

func TestSniffUnknownExtension(t *testing.T) {
	h := newTestHandler(t, newTestTree(t), func(o *Options) { o.Sniff = true })

	rec := do(h, http.MethodGet, "/blob.dat")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Check(t, is.Equal(rec.Header().Get("Content-Type"), "image/png"))

	// テーブルの登録が内容判定より優先される
	rec = do(h, http.MethodGet, "/a/b.css")
	assert.Check(t, is.Equal(rec.Header().Get("Content-Type"), "text/css"))
}

func TestNotFoundKeepsServing(t *testing.T) {
	h := newTestHandler(t, newTestTree(t), nil)

	long := strings.Repeat("a", 300)
	paths := []string{
		"/missing.js",
		"/a/missing/",
		"/a/b.css/x",
		// ファイルに末尾のスラッシュ
		"/a/b.css/",
		"/index.html/",
		// ファイル名の長さ制限を超える要素
		"/" + long,
		"/" + long + "/x",
		"/a/" + long + ".css",
	}
	for _, p := range paths {
		for _, method := range []string{http.MethodGet, http.MethodHead} {
			rec := do(h, method, p)
			assert.Check(t, is.Equal(rec.Code, http.StatusNotFound), "%s %s", method, p)
		}
	}

	rec := do(h, http.MethodGet, "/index.html")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Check(t, is.Equal(rec.Body.String(), "<h1>home</h1>"))
}

func TestHas(t *testing.T) {
	h := newTestHandler(t, newTestTree(t), nil)

	testCases := []struct {
		path string
		want bool
	}{
		{"/a/b.css", true},
		{"/a", true},
		{"/", true},
		{"/missing.js", false},
		{"/../secret.txt", false},
		{"/" + strings.Repeat("a", 300), false},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Check(t, is.Equal(h.Has(tc.path), tc.want))
		})
	}
}

func TestDirectoryIndex(t *testing.T) {
	h := newTestHandler(t, newTestTree(t), nil)

	rec := do(h, http.MethodGet, "/a/")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Check(t, is.Equal(rec.Header().Get("Content-Type"), "text/html"))
	assert.Check(t, is.Equal(rec.Body.String(), "<h1>a</h1>"))

	rec = do(h, http.MethodGet, "/")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Check(t, is.Equal(rec.Body.String(), "<h1>home</h1>"))
}

func TestDirectoryRedirect(t *testing.T) {
	h := newTestHandler(t, newTestTree(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/a?x=1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, rec.Code, http.StatusMovedPermanently)
	assert.Check(t, is.Equal(rec.Header().Get("Location"), "/a/?x=1"))

	// Location は生のパスではなく正規化済みのパスから作る
	rec = do(h, http.MethodGet, "//a")
	assert.Equal(t, rec.Code, http.StatusMovedPermanently)
	assert.Check(t, is.Equal(rec.Header().Get("Location"), "/a/"))
}

func TestDirectoryWithoutIndex(t *testing.T) {
	root := newTestTree(t)

	t.Run("一覧無効", func(t *testing.T) {
		h := newTestHandler(t, root, nil)
		rec := do(h, http.MethodGet, "/sub/")
		assert.Check(t, is.Equal(rec.Code, http.StatusNotFound))
	})

	t.Run("一覧有効", func(t *testing.T) {
		h := newTestHandler(t, root, func(o *Options) { o.DirectoryListing = true })
		rec := do(h, http.MethodGet, "/sub/")
		assert.Equal(t, rec.Code, http.StatusOK)
		assert.Check(t, is.Equal(rec.Header().Get("Content-Type"), "text/html; charset=utf-8"))

		body := rec.Body.String()
		assert.Check(t, is.Contains(body, "Directory listing for /sub/"))
		assert.Check(t, is.Contains(body, `<a href="b.txt">b.txt</a>`))
		assert.Check(t, is.Contains(body, `<a href="c/">c/</a>`))
		assert.Check(t, strings.Index(body, "b.txt") < strings.Index(body, "c/"))

		again := do(h, http.MethodGet, "/sub/")
		assert.Check(t, is.Equal(again.Body.String(), body))
	})
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, newTestTree(t), nil)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions} {
		for _, p := range []string{"/a/b.css", "/missing", "/../secret.txt"} {
			rec := do(h, method, p)
			assert.Check(t, is.Equal(rec.Code, http.StatusMethodNotAllowed), "%s %s", method, p)
			assert.Check(t, is.Equal(rec.Header().Get("Allow"), "GET, HEAD"))
		}
	}
}

func TestTraversalRejected(t *testing.T) {
	h := newTestHandler(t, newTestTree(t), nil)

	testCases := []struct {
		path string
		code int
	}{
		{"/../secret.txt", http.StatusForbidden},
		{"/a/../../secret.txt", http.StatusForbidden},
		{"/a/./../../secret.txt", http.StatusForbidden},
		{"/..", http.StatusForbidden},
		{`/..\secret.txt`, http.StatusForbidden},
		{"/secret.txt\x00.css", http.StatusForbidden},
		{"/a/../secret.txt", http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			rec := do(h, http.MethodGet, tc.path)
			assert.Check(t, is.Equal(rec.Code, tc.code))
			assert.Check(t, !strings.Contains(rec.Body.String(), secret))
		})
	}
}

func TestSymlinkScopedToRoot(t *testing.T) {
	root := newTestTree(t)
	outside := filepath.Dir(root)
	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Skipf("シンボリックリンクを作成できません: %v", err)
	}
	if err := os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "secret-link.txt")); err != nil {
		t.Skipf("シンボリックリンクを作成できません: %v", err)
	}
	assert.NilError(t, os.Symlink("a/b.css", filepath.Join(root, "style.css")))

	h := newTestHandler(t, root, nil)

	for _, p := range []string{"/escape/secret.txt", "/secret-link.txt"} {
		rec := do(h, http.MethodGet, p)
		assert.Check(t, rec.Code == http.StatusForbidden || rec.Code == http.StatusNotFound, "%s: %d", p, rec.Code)
		assert.Check(t, !strings.Contains(rec.Body.String(), secret))
	}

	// ルート内に収まるリンクはたどる
	rec := do(h, http.MethodGet, "/style.css")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Check(t, is.Equal(rec.Header().Get("Content-Type"), "text/css"))
}

func TestNewRootErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := New(Options{Root: filepath.Join(dir, "out")})
	assert.Check(t, errors.Is(err, ErrRootNotFound), "got %v", err)

	file := filepath.Join(dir, "file")
	assert.NilError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(Options{Root: file})
	assert.Check(t, errors.Is(err, ErrRootNotDir), "got %v", err)
}

func TestNewDefaults(t *testing.T) {
	h, err := New(Options{Root: t.TempDir()})
	assert.NilError(t, err)
	assert.Check(t, filepath.IsAbs(h.Root()))
	assert.Check(t, is.Equal(h.types.Len(), DefaultMIMETable().Len()))
}

func TestSplitPath(t *testing.T) {
	testCases := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"/", []string{}, false},
		{"", []string{}, false},
		{"/a/b.css", []string{"a", "b.css"}, false},
		{"//a///b/", []string{"a", "b"}, false},
		{"/a/./b/../c", []string{"a", "c"}, false},
		{"/a/..", []string{}, false},
		{"/../a", nil, true},
		{"/a/../..", nil, true},
		{`/a\b`, nil, true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := splitPath(tc.in)
			if tc.wantErr {
				assert.Check(t, err != nil)
				return
			}
			assert.NilError(t, err)
			assert.Check(t, is.DeepEqual(got, tc.want))
		})
	}
}
