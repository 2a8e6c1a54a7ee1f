// Package static は、ディレクトリツリーをHTTPで配信します。
//
// リクエストパスはファイルシステムに触れる前に正規化します。
// "." と ".." は URL 上で適用し、ルートより上に出るものは 403 とします。
// シンボリックリンクはルートを "/" とみなして解決するため、
// リンクを経由してもルートの外のファイルは見えません。
//
// Content-Type は小文字の拡張子をキーとする変更不可の MIMETable から決めます。
// 未知の拡張子は application/octet-stream とし、内容判定を有効にした場合のみ
// ファイルの中身から判定します。
package static
