package realtime

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/listing-market/internal/model"
	"github.com/iliyamo/listing-market/internal/repository"
)

const maxCommentChars = 2000

// CommentStore persists comments and loads their display shape.
type CommentStore interface {
	Create(ctx context.Context, c model.Comment) (uint64, error)
	GetView(ctx context.Context, id uint64) (model.CommentView, error)
}

var _ CommentStore = (*repository.CommentRepo)(nil)

// CommentHub implements the comment operations on top of a Hub.
type CommentHub struct {
	hub      *Hub
	comments CommentStore
	log      *slog.Logger
}

func NewCommentHub(hub *Hub, comments CommentStore, log *slog.Logger) *CommentHub {
	return &CommentHub{hub: hub, comments: comments, log: log}
}

// Hub exposes the underlying room registry.
func (h *CommentHub) Hub() *Hub { return h.hub }

var (
	errLoginRequired  = errors.New("login required")
	errMissingPost    = errors.New("postId is required")
	errEmptyContent   = errors.New("content is required")
	errContentTooLong = errors.New("content is too long")
	errCommentFailed  = errors.New("could not create comment")
	errUnknownParent  = errors.New("parent comment does not exist")
	errForeignParent  = errors.New("parent comment belongs to another post")
)

// Join subscribes c to the comment room of postID.
func (h *CommentHub) Join(c *Client, postID uint64) error {
	if postID == 0 {
		return errMissingPost
	}
	h.hub.Join(RoomName(postID), c)
	return nil
}

// Leave unsubscribes c from the comment room of postID.
func (h *CommentHub) Leave(c *Client, postID uint64) {
	h.hub.Leave(RoomName(postID), c.ID)
}

// Post persists a comment by c and announces it. The comment goes to every
// subscriber of the post's room, the author included. A reply additionally
// sends a +1 reply-count delta for its parent to everyone else in the same
// room; the parent must belong to the same post.
// Nothing is broadcast unless the write and both reads succeed; on failure
// only the author gets an error frame.
func (h *CommentHub) Post(ctx context.Context, c *Client, in NewComment) error {
	view, parent, err := h.persist(ctx, c, in)
	if err != nil {
		h.log.InfoContext(ctx, "hub.comment.rejected", "client_id", c.ID, "err", err)
		_ = h.hub.Send(c, errorFrame(EventNewComment, err.Error()))
		return err
	}

	room := RoomName(view.PostID)
	if err := h.hub.Broadcast(room, okFrame(EventNewComment, view)); err != nil {
		return err
	}
	if !h.hub.Member(room, c.ID) {
		_ = h.hub.Send(c, okFrame(EventNewComment, view))
	}
	if parent != nil {
		meta := ReplyMeta{CommentID: parent.ID, Delta: 1}
		if err := h.hub.BroadcastExcept(room, okFrame(EventCommentReplyMeta, meta), c.ID); err != nil {
			return err
		}
	}
	h.log.InfoContext(ctx, "hub.comment.created", "comment_id", view.ID, "post_id", view.PostID)
	return nil
}

func (h *CommentHub) persist(ctx context.Context, c *Client, in NewComment) (model.CommentView, *model.CommentView, error) {
	if c.Anonymous() {
		return model.CommentView{}, nil, errLoginRequired
	}
	if in.PostID == 0 {
		return model.CommentView{}, nil, errMissingPost
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return model.CommentView{}, nil, errEmptyContent
	}
	if utf8.RuneCountInString(content) > maxCommentChars {
		return model.CommentView{}, nil, errContentTooLong
	}

	var parent *model.CommentView
	if in.ParentID != nil {
		p, err := h.comments.GetView(ctx, *in.ParentID)
		if errors.Is(err, repository.ErrNotFound) {
			return model.CommentView{}, nil, errUnknownParent
		}
		if err != nil {
			return model.CommentView{}, nil, h.storeErr(ctx, err)
		}
		if p.PostID != in.PostID {
			return model.CommentView{}, nil, errForeignParent
		}
		parent = &p
	}

	id, err := h.comments.Create(ctx, model.Comment{
		UserID:   c.UserID,
		PostID:   in.PostID,
		ParentID: in.ParentID,
		Content:  content,
	})
	if err != nil {
		return model.CommentView{}, nil, h.storeErr(ctx, err)
	}
	view, err := h.comments.GetView(ctx, id)
	if err != nil {
		return model.CommentView{}, nil, h.storeErr(ctx, err)
	}
	return view, parent, nil
}

// storeErr hides storage details from clients.
func (h *CommentHub) storeErr(ctx context.Context, err error) error {
	if errors.Is(err, repository.ErrMissingReference) {
		return errors.New("post or parent comment does not exist")
	}
	h.log.ErrorContext(ctx, "hub.comment.store_failed", "err", err)
	return errCommentFailed
}
