package db

import (
	"context"
	"database/sql"
)

const createUser = `
INSERT INTO users (id, first_name, last_name, path, image, profile_image)
VALUES (?, ?, ?, ?, ?, ?)
`

// CreateUserParams はCreateUserの引数。
type CreateUserParams struct {
	ID           string
	FirstName    string
	LastName     string
	Path         string
	Image        string
	ProfileImage string
}

// CreateUser はユーザーを作成する。
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, createUser,
		arg.ID,
		arg.FirstName,
		arg.LastName,
		arg.Path,
		arg.Image,
		arg.ProfileImage,
	)
	return err
}

const getUserByID = `
SELECT id, first_name, last_name, path, image, profile_image, deleted_at
FROM users
WHERE id = ? AND deleted_at IS NULL
`

// GetUserByID は削除されていないユーザーをIDで取得する。
func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByID, id)
	var i User
	err := row.Scan(
		&i.ID,
		&i.FirstName,
		&i.LastName,
		&i.Path,
		&i.Image,
		&i.ProfileImage,
		&i.DeletedAt,
	)
	return i, err
}

const getUserByPath = `
SELECT id, first_name, last_name, path, image, profile_image, deleted_at
FROM users
WHERE path = ? AND deleted_at IS NULL
`

// GetUserByPath は削除されていないユーザーをパスで取得する。
func (q *Queries) GetUserByPath(ctx context.Context, path string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByPath, path)
	var i User
	err := row.Scan(
		&i.ID,
		&i.FirstName,
		&i.LastName,
		&i.Path,
		&i.Image,
		&i.ProfileImage,
		&i.DeletedAt,
	)
	return i, err
}

const deleteUser = `
UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL
`

// DeleteUserParams はDeleteUserの引数。
type DeleteUserParams struct {
	DeletedAt sql.NullInt64
	ID        string
}

// DeleteUser はユーザーを論理削除する。
func (q *Queries) DeleteUser(ctx context.Context, arg DeleteUserParams) error {
	_, err := q.db.ExecContext(ctx, deleteUser, arg.DeletedAt, arg.ID)
	return err
}

const upsertFriendship = `
INSERT INTO friendships (user_id, friend_id, status, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (user_id, friend_id) DO UPDATE SET status = excluded.status
`

// UpsertFriendshipParams はUpsertFriendshipの引数。
type UpsertFriendshipParams struct {
	UserID    string
	FriendID  string
	Status    string
	CreatedAt int64
}

// UpsertFriendship は友達関係を作成または状態を更新する。
func (q *Queries) UpsertFriendship(ctx context.Context, arg UpsertFriendshipParams) error {
	_, err := q.db.ExecContext(ctx, upsertFriendship,
		arg.UserID,
		arg.FriendID,
		arg.Status,
		arg.CreatedAt,
	)
	return err
}

const listFriends = `
SELECT u.id, u.first_name, u.last_name, u.path, u.image, u.profile_image, u.deleted_at
FROM friendships f
JOIN users u
  ON u.id = CASE WHEN f.user_id = ?1 THEN f.friend_id ELSE f.user_id END
WHERE (f.user_id = ?1 OR f.friend_id = ?1)
  AND f.status = 'accepted'
  AND u.deleted_at IS NULL
GROUP BY u.id
ORDER BY u.first_name, u.last_name, u.id
`

// ListFriends は承認済みの友達を申請の向きによらず取得する。
func (q *Queries) ListFriends(ctx context.Context, userID string) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listFriends, userID)
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
