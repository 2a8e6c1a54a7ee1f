package static

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gabriel-vasile/mimetype"
	"github.com/moby/sys/symlink"
	"github.com/sirupsen/logrus"
)

var (
	// ErrRootNotFound は配信ディレクトリが存在しない場合に New が返すエラー
	ErrRootNotFound = errors.New("配信ディレクトリが見つかりません")
	// ErrRootNotDir は配信ルートがディレクトリでない場合に New が返すエラー
	ErrRootNotDir = errors.New("配信ルートがディレクトリではありません")

	errOutsideRoot = errors.New("ルートの外を指すパスです")
	errBadSegment  = errors.New("不正なパス要素です")
)

// Options は Handler の設定。生成時にコピーされる
type Options struct {
	Root             string
	IndexFile        string
	DirectoryListing bool
	// Types にない拡張子の Content-Type を内容から判定する
	Sniff  bool
	Types  MIMETable
	Logger logrus.FieldLogger
}

// Handler は単一のルートディレクトリ以下のファイルを配信する
type Handler struct {
	root    string
	index   string
	listing bool
	sniff   bool
	types   MIMETable
	log     logrus.FieldLogger
}

// New は opts.Root が既存のディレクトリであることを確認し、Handler を返す
func New(opts Options) (*Handler, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("パスの解決に失敗 %s: %w", opts.Root, err)
	}
	fi, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotFound, opts.Root)
		}
		return nil, fmt.Errorf("配信ディレクトリの確認に失敗 %s: %w", opts.Root, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDir, opts.Root)
	}
	// スコープ付きの解決はシンボリックリンクを解決済みのルートと比較する
	root, err = filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("パスの解決に失敗 %s: %w", opts.Root, err)
	}

	types := opts.Types
	if types.Len() == 0 {
		types = DefaultMIMETable()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Handler{
		root:    root,
		index:   opts.IndexFile,
		listing: opts.DirectoryListing,
		sniff:   opts.Sniff,
		types:   types,
		log:     logger,
	}, nil
}

// Root はシンボリックリンクを解決済みの絶対パスを返す
func (h *Handler) Root() string {
	return h.root
}

// Has は URL パスがルート以下の既存のファイルまたはディレクトリを指すかを返す
func (h *Handler) Has(urlPath string) bool {
	segments, err := splitPath(urlPath)
	if err != nil {
		return false
	}
	name, err := h.resolve(segments)
	if err != nil {
		return false
	}
	_, err = os.Stat(name)
	return err == nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path})

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		h.error(w, log, http.StatusMethodNotAllowed, nil)
		return
	}

	segments, err := splitPath(r.URL.Path)
	if err != nil {
		h.error(w, log, http.StatusForbidden, err)
		return
	}

	name, err := h.resolve(segments)
	if err != nil {
		code := statusFor(err)
		if errors.Is(err, errOutsideRoot) {
			code = http.StatusForbidden
		}
		h.error(w, log, code, err)
		return
	}

	fi, err := os.Stat(name)
	if err != nil {
		h.error(w, log, statusFor(err), err)
		return
	}

	if fi.IsDir() {
		h.serveDir(w, r, log, name, segments)
		return
	}
	// 末尾のスラッシュはディレクトリだけに許す
	if strings.HasSuffix(r.URL.Path, "/") {
		h.error(w, log, http.StatusNotFound, errors.New("ファイルに末尾のスラッシュが付いています"))
		return
	}
	h.serveFile(w, r, log, name, fi)
}

func (h *Handler) serveDir(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, dir string, segments []string) {
	urlPath := "/" + strings.Join(segments, "/")
	if len(segments) > 0 {
		urlPath += "/"
	}
	if !strings.HasSuffix(r.URL.Path, "/") {
		if r.URL.RawQuery != "" {
			urlPath += "?" + r.URL.RawQuery
		}
		log.WithField("location", urlPath).Debug("ディレクトリへリダイレクトします")
		http.Redirect(w, r, urlPath, http.StatusMovedPermanently)
		return
	}

	if h.index != "" {
		index, err := symlink.FollowSymlinkInScope(filepath.Join(dir, h.index), h.root)
		if err == nil {
			if fi, err := os.Stat(index); err == nil && fi.Mode().IsRegular() {
				h.serveFile(w, r, log, index, fi)
				return
			}
		}
	}

	if !h.listing {
		h.error(w, log, http.StatusNotFound, errors.New("indexファイルがありません"))
		return
	}
	if err := writeListing(w, r, dir, urlPath); err != nil {
		h.error(w, log, statusFor(err), err)
		return
	}
	log.WithField("status", http.StatusOK).Debug("ディレクトリ一覧を返しました")
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, name string, fi os.FileInfo) {
	if !fi.Mode().IsRegular() {
		h.error(w, log, http.StatusNotFound, errors.New("通常のファイルではありません"))
		return
	}

	f, err := os.Open(name)
	if err != nil {
		h.error(w, log, statusFor(err), err)
		return
	}
	defer f.Close()

	ctype := h.contentType(name, log)
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	w.WriteHeader(http.StatusOK)

	fields := logrus.Fields{"status": http.StatusOK, "file": name, "content_type": ctype}
	if r.Method == http.MethodHead {
		log.WithFields(fields).Debug("ヘッダーのみ返しました")
		return
	}
	n, err := io.CopyN(w, f, fi.Size())
	if err != nil {
		// ヘッダー送信済みのため、クライアントには短い本文が届く
		log.WithFields(fields).WithError(err).WithField("written", n).Warn("ファイルの送信が中断されました")
		return
	}
	log.WithFields(fields).Debug("ファイルを配信しました")
}

// contentType は拡張子テーブル、有効なら内容判定の順で Content-Type を決める
func (h *Handler) contentType(name string, log logrus.FieldLogger) string {
	if !h.sniff {
		return h.types.TypeByName(name)
	}
	if typ, ok := h.types.Lookup(name); ok {
		return typ
	}
	mt, err := mimetype.DetectFile(name)
	if err != nil {
		log.WithError(err).Debug("内容からの判定に失敗しました")
		return DefaultContentType
	}
	return mt.String()
}

// resolve は正規化済みのパス要素をファイルシステム上のパスに変換する
// シンボリックリンクはルートを "/" とみなして解決するため、ルートの外には出ない
func (h *Handler) resolve(segments []string) (string, error) {
	joined := filepath.Join(append([]string{h.root}, segments...)...)
	name, err := symlink.FollowSymlinkInScope(joined, h.root)
	if err != nil {
		return "", err
	}
	if !within(h.root, name) {
		return "", errOutsideRoot
	}
	return name, nil
}

func (h *Handler) error(w http.ResponseWriter, log logrus.FieldLogger, code int, err error) {
	entry := log.WithField("status", code)
	if err != nil {
		entry = entry.WithError(err)
	}
	if code >= http.StatusInternalServerError {
		entry.Error("リクエストの処理に失敗しました")
	} else {
		entry.Debug("リクエストを拒否しました")
	}
	http.Error(w, http.StatusText(code), code)
}

// splitPath はデコード済みの URL パスをパス要素に分解する
// "." と空の要素は捨て、".." は一つ前の要素を取り除く。ルートより上に出るとエラー
func splitPath(p string) ([]string, error) {
	segments := make([]string, 0, strings.Count(p, "/"))
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(segments) == 0 {
				return nil, errOutsideRoot
			}
			segments = segments[:len(segments)-1]
		default:
			if strings.ContainsAny(seg, "\x00\\") {
				return nil, errBadSegment
			}
			segments = append(segments, seg)
		}
	}
	return segments, nil
}

func within(root, name string) bool {
	rel, err := filepath.Rel(root, name)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, fs.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, syscall.ENOTDIR),
		// ファイルをディレクトリとして扱った場合 (/a.css/b など)
		errors.Is(err, syscall.ENAMETOOLONG),
		errors.Is(err, syscall.EINVAL):
		// クライアントが作れるパスなので 404 とする
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
