// Package event はサービス外部へ通知するイベントの種類とデータ構造を定義する。
package event
