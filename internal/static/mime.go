package static

import (
	"path/filepath"
	"strings"
)

// DefaultContentType はテーブルにない拡張子に使う Content-Type
const DefaultContentType = "application/octet-stream"

var defaultTypes = map[string]string{
	".js":    "application/javascript",
	".mjs":   "application/javascript",
	".css":   "text/css",
	".html":  "text/html",
	".json":  "application/json",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".eot":   "application/vnd.ms-fontobject",
}

// MIMETable は小文字の拡張子 (先頭の "." を含む) からメディアタイプへの対応表
// 生成後に変更されないため、ロックなしでゴルーチン間で共有できる
type MIMETable struct {
	types map[string]string
}

// DefaultMIMETable はビルド済みWebアセット配信用のテーブルを返す
func DefaultMIMETable() MIMETable {
	return MIMETable{types: copyTypes(defaultTypes, nil)}
}

// WithOverrides は指定したエントリを追加・置換した新しいテーブルを返す
// レシーバは変更しない
func (t MIMETable) WithOverrides(overrides map[string]string) MIMETable {
	return MIMETable{types: copyTypes(t.types, overrides)}
}

// Lookup は name の拡張子に登録されたメディアタイプを返す
func (t MIMETable) Lookup(name string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "", false
	}
	typ, ok := t.types[ext]
	return typ, ok
}

// TypeByName は Lookup と同じだが、未登録なら DefaultContentType を返す
func (t MIMETable) TypeByName(name string) string {
	if typ, ok := t.Lookup(name); ok {
		return typ
	}
	return DefaultContentType
}

// Len は登録済みの拡張子の数を返す
func (t MIMETable) Len() int {
	return len(t.types)
}

func copyTypes(base, overrides map[string]string) map[string]string {
	m := make(map[string]string, len(base)+len(overrides))
	for ext, typ := range base {
		m[ext] = typ
	}
	for ext, typ := range overrides {
		m[strings.ToLower(ext)] = typ
	}
	return m
}
