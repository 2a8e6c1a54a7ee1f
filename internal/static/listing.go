package static

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"
	"os"
	"strconv"
)

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Directory listing for {{.Path}}</title>
</head>
<body>
<h1>Directory listing for {{.Path}}</h1>
<hr>
<ul>
{{- range .Entries}}
<li><a href="{{.Href}}">{{.Name}}</a></li>
{{- end}}
</ul>
<hr>
</body>
</html>
`))

type listingEntry struct {
	Name string
	Href string
}

// writeListing は dir のエントリ一覧を HTML で返す
// os.ReadDir はファイル名順に並べるため、同じツリーなら常に同じ出力になる
func writeListing(w http.ResponseWriter, r *http.Request, dir, urlPath string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	data := struct {
		Path    string
		Entries []listingEntry
	}{Path: urlPath}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		href := (&url.URL{Path: name}).String()
		data.Entries = append(data.Entries, listingEntry{Name: name, Href: href})
	}

	var buf bytes.Buffer
	if err := listingTemplate.Execute(&buf, data); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		// ヘッダー送信済み。書き込みの失敗はクライアントの切断を意味するだけ
		_, _ = buf.WriteTo(w)
	}
	return nil
}
