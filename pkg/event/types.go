package event

// Type はイベントの種類を表す。
type Type string

const (
	// TypeReviewCreated はレビューが作成されたことを表す。
	TypeReviewCreated Type = "ReviewCreated"
)

// ReviewCreatedData はReviewCreatedイベントのデータ。
// 通知Webhookへそのまま送信されるため、フィールド名は受信側の形式に合わせる。
type ReviewCreatedData struct {
	// UserID はレビューを作成したユーザーのID。
	UserID string `json:"userId"`
	// BookID はレビュー対象の書籍ID。
	BookID string `json:"bookId"`
	// ReviewID は作成されたレビューのID。
	ReviewID string `json:"reviewId"`
	// Rating は評価（1〜5）。
	Rating int `json:"rating"`
	// IsFirstReview はユーザーにとって最初のレビューであるかを表す。
	// 通知文面の出し分けにのみ使われ、不変条件には関与しない。
	IsFirstReview bool `json:"isFirstReview"`
}

// Type はイベントの種類を返す。
func (ReviewCreatedData) Type() Type {
	return TypeReviewCreated
}
