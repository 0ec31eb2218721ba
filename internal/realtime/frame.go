// Package realtime fans comment events out to WebSocket subscribers grouped
// in per-post rooms.
package realtime

import (
	"encoding/json"
	"strconv"
)

// Event names carried in the "event" field of every frame.
const (
	EventJoinPostComments  = "join-post-comments"
	EventLeavePostComments = "leave-post-comments"
	EventNewComment        = "new-comment"
	EventCommentReplyMeta  = "comment-reply-meta"
	EventError             = "error"
)

// RoomName is the room holding subscribers of one post's comment thread.
func RoomName(postID uint64) string {
	return "comment:post:" + strconv.FormatUint(postID, 10)
}

// Inbound is a client-to-server frame.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Meta reports the outcome of the operation a frame answers.
type Meta struct {
	Success bool    `json:"success"`
	Error   *string `json:"error"`
}

// Frame is a server-to-client frame.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
	Meta  Meta   `json:"meta"`
}

func okFrame(event string, data any) Frame {
	return Frame{Event: event, Data: data, Meta: Meta{Success: true}}
}

func errorFrame(event, msg string) Frame {
	return Frame{Event: event, Meta: Meta{Success: false, Error: &msg}}
}

// ReplyMeta announces a reply-count change on a parent comment.
type ReplyMeta struct {
	CommentID uint64 `json:"commentId"`
	Delta     int    `json:"delta"`
}

// PostRef is the payload of join and leave frames.
type PostRef struct {
	PostID uint64 `json:"postId"`
}

// NewComment is the payload of an inbound new-comment frame.
type NewComment struct {
	Content  string  `json:"content"`
	PostID   uint64  `json:"postId"`
	ParentID *uint64 `json:"parentId"`
}
