package db

import "context"

const createPost = `
INSERT INTO posts (id, author_id, body, created_at) VALUES (?, ?, ?, ?)
`

// CreatePostParams はCreatePostの引数。
type CreatePostParams struct {
	ID        string
	AuthorID  string
	Body      string
	CreatedAt int64
}

// CreatePost は投稿を作成する。
func (q *Queries) CreatePost(ctx context.Context, arg CreatePostParams) error {
	_, err := q.db.ExecContext(ctx, createPost,
		arg.ID,
		arg.AuthorID,
		arg.Body,
		arg.CreatedAt,
	)
	return err
}

const getPost = `
SELECT id, author_id, body, created_at FROM posts WHERE id = ?
`

// GetPost は投稿をIDで取得する。
func (q *Queries) GetPost(ctx context.Context, id string) (Post, error) {
	row := q.db.QueryRowContext(ctx, getPost, id)
	var i Post
	err := row.Scan(
		&i.ID,
		&i.AuthorID,
		&i.Body,
		&i.CreatedAt,
	)
	return i, err
}

const deletePost = `
DELETE FROM posts WHERE id = ?
`

// DeletePost は投稿を削除する。
func (q *Queries) DeletePost(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deletePost, id)
	return err
}

const deleteLikesByPost = `
DELETE FROM likes WHERE post_id = ?
`

// DeleteLikesByPost は投稿に付いたいいねをすべて削除する。
func (q *Queries) DeleteLikesByPost(ctx context.Context, postID string) error {
	_, err := q.db.ExecContext(ctx, deleteLikesByPost, postID)
	return err
}

const createLike = `
INSERT INTO likes (post_id, user_id, created_at) VALUES (?, ?, ?)
ON CONFLICT (post_id, user_id) DO NOTHING
`

// CreateLikeParams はCreateLikeの引数。
type CreateLikeParams struct {
	PostID    string
	UserID    string
	CreatedAt int64
}

// CreateLike はいいねを作成する。既にいいね済みなら何もしない。
func (q *Queries) CreateLike(ctx context.Context, arg CreateLikeParams) error {
	_, err := q.db.ExecContext(ctx, createLike, arg.PostID, arg.UserID, arg.CreatedAt)
	return err
}

const listPostLikers = `
SELECT u.id, u.first_name, u.last_name, u.path, u.image, u.profile_image, u.deleted_at
FROM likes l
JOIN users u ON u.id = l.user_id
WHERE l.post_id = ?
ORDER BY l.created_at DESC, l.rowid DESC
`

// ListPostLikers は投稿にいいねしたユーザーを新しい順に取得する。
func (q *Queries) ListPostLikers(ctx context.Context, postID string) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listPostLikers, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		var i User
		if err := rows.Scan(
			&i.ID,
			&i.FirstName,
			&i.LastName,
			&i.Path,
			&i.Image,
			&i.ProfileImage,
			&i.DeletedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
