package db

import "database/sql"

// 日時はすべてunixミリ秒で保存する。

// User はusersテーブルの1行。
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Path         string
	Image        string
	ProfileImage string
	DeletedAt    sql.NullInt64
}

// Friendship はfriendshipsテーブルの1行。
type Friendship struct {
	UserID    string
	FriendID  string
	Status    string
	CreatedAt int64
}

// Post はpostsテーブルの1行。
type Post struct {
	ID        string
	AuthorID  string
	Body      string
	CreatedAt int64
}

// Message はmessagesテーブルの1行。
type Message struct {
	ID          string
	SenderID    string
	RecipientID string
	Body        string
	CreatedAt   int64
	SeenAt      sql.NullInt64
	Rowid       int64
}

// Notification はnotificationsテーブルの1行。
type Notification struct {
	ID        string
	FromID    string
	ToID      string
	Type      string
	PostID    sql.NullString
	Message   string
	CreatedAt int64
	UpdatedAt int64
	SeenAt    sql.NullInt64
}
