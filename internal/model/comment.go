package model

import "time"

// Comment mirrors the `comments` table. ParentID is nil for top-level
// comments.
type Comment struct {
	ID        uint64
	UserID    uint64
	PostID    uint64
	ParentID  *uint64
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CommentAuthor is the author subset embedded in a CommentView.
type CommentAuthor struct {
	ID        uint64 `json:"id"`
	Nickname  string `json:"nickname"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Avatar    string `json:"avatar"`
}

// CommentView is a comment joined with its author and derived reply count,
// ready to be sent to clients.
type CommentView struct {
	ID         uint64        `json:"id"`
	UserID     uint64        `json:"userId"`
	PostID     uint64        `json:"postId"`
	ParentID   *uint64       `json:"parentId"`
	Content    string        `json:"content"`
	ReplyCount int64         `json:"replyCount"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
	User       CommentAuthor `json:"user"`
}
