package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/listing-market/internal/model"
)

type CommentRepo struct{ DB *sql.DB }

func NewCommentRepo(db *sql.DB) *CommentRepo { return &CommentRepo{DB: db} }

// Create inserts a comment and returns its id. A missing post, author or
// parent yields ErrMissingReference.
func (r *CommentRepo) Create(ctx context.Context, c model.Comment) (uint64, error) {
	var parent sql.NullInt64
	if c.ParentID != nil {
		parent = sql.NullInt64{Int64: int64(*c.ParentID), Valid: true}
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO comments (user_id, post_id, parent_id, content) VALUES (?,?,?,?)",
		c.UserID, c.PostID, parent, c.Content)
	if err != nil {
		if missingReference(err) {
			return 0, ErrMissingReference
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetView loads a comment joined with its author and its reply count.
func (r *CommentRepo) GetView(ctx context.Context, id uint64) (model.CommentView, error) {
	var (
		v      model.CommentView
		parent sql.NullInt64
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT c.id, c.user_id, c.post_id, c.parent_id, c.content, c.created_at, c.updated_at,
		        (SELECT COUNT(1) FROM comments r WHERE r.parent_id = c.id) AS reply_count,
		        u.id, u.nickname, u.first_name, u.last_name, u.avatar
		 FROM comments c
		 JOIN users u ON u.id = c.user_id
		 WHERE c.id = ?
		 LIMIT 1`, id).Scan(
		&v.ID, &v.UserID, &v.PostID, &parent, &v.Content, &v.CreatedAt, &v.UpdatedAt,
		&v.ReplyCount,
		&v.User.ID, &v.User.Nickname, &v.User.FirstName, &v.User.LastName, &v.User.Avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CommentView{}, ErrNotFound
	}
	if err != nil {
		return model.CommentView{}, err
	}
	if parent.Valid {
		p := uint64(parent.Int64)
		v.ParentID = &p
	}
	return v, nil
}
