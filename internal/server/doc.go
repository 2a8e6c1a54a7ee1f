// Package server は、静的サイトを配信するHTTPサーバーを管理します。
//
// 責務:
//   - 配信ディレクトリの検証 (存在しなければリスナーを作らずに失敗する)
//   - Ginエンジンへのルーティング設定とミドルウェア (リクエストID、アクセスログ、メトリクス)
//   - /-/ 以下の運用エンドポイント (ヘルスチェック、ステータス、メトリクス、OpenAPI)
//   - それ以外のパスの静的ファイル配信 (internal/static に委譲)
//   - シグナル受信時のグレースフルシャットダウン
//
// 仕様:
//   - 共有する状態 (ルートディレクトリ、拡張子テーブル) は生成後に変更しないためロック不要
//   - 接続ごとのゴルーチンは net/http に任せる
package server
