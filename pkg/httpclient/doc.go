// Package httpclient は外部サービスへJSONを送信するHTTPクライアントを提供する。
//
// タイムアウトを必ず設定し、2xx以外の応答はエラーとして扱う。
// 通知Webhookへの送信に使用する。
package httpclient
