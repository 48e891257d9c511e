package db

import (
	"context"
	"database/sql"
)

const createNotification = `
INSERT INTO notifications (id, from_id, to_id, type, post_id, message, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

// CreateNotificationParams はCreateNotificationの引数。
type CreateNotificationParams struct {
	ID        string
	FromID    string
	ToID      string
	Type      string
	PostID    sql.NullString
	Message   string
	CreatedAt int64
	UpdatedAt int64
}

// CreateNotification は通知を作成する。
func (q *Queries) CreateNotification(ctx context.Context, arg CreateNotificationParams) error {
	_, err := q.db.ExecContext(ctx, createNotification,
		arg.ID,
		arg.FromID,
		arg.ToID,
		arg.Type,
		arg.PostID,
		arg.Message,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const listNotificationsForUser = `
SELECT n.id, n.from_id, n.to_id, n.type, n.post_id, n.message,
       n.created_at, n.updated_at, n.seen_at,
       u.id, u.first_name, u.last_name, u.path, u.image, u.profile_image
FROM notifications n
JOIN users u ON u.id = n.from_id
WHERE n.to_id = ?
ORDER BY n.updated_at DESC, n.rowid DESC
`

// ListNotificationsForUserRow は通知と送信者の表示情報の組。
type ListNotificationsForUserRow struct {
	Notification       Notification
	SenderID           string
	SenderFirstName    string
	SenderLastName     string
	SenderPath         string
	SenderImage        string
	SenderProfileImage string
}

// ListNotificationsForUser はユーザー宛ての通知を新しい順に送信者と共に取得する。
func (q *Queries) ListNotificationsForUser(ctx context.Context, toID string) ([]ListNotificationsForUserRow, error) {
	rows, err := q.db.QueryContext(ctx, listNotificationsForUser, toID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListNotificationsForUserRow
	for rows.Next() {
		var i ListNotificationsForUserRow
		if err := rows.Scan(
			&i.Notification.ID,
			&i.Notification.FromID,
			&i.Notification.ToID,
			&i.Notification.Type,
			&i.Notification.PostID,
			&i.Notification.Message,
			&i.Notification.CreatedAt,
			&i.Notification.UpdatedAt,
			&i.Notification.SeenAt,
			&i.SenderID,
			&i.SenderFirstName,
			&i.SenderLastName,
			&i.SenderPath,
			&i.SenderImage,
			&i.SenderProfileImage,
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

const countUnseenNotifications = `
SELECT COUNT(*) FROM notifications WHERE to_id = ? AND seen_at IS NULL
`

// CountUnseenNotifications はユーザー宛ての未読通知数を返す。
func (q *Queries) CountUnseenNotifications(ctx context.Context, toID string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countUnseenNotifications, toID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const markNotificationSeen = `
UPDATE notifications SET seen_at = ?
WHERE id = ? AND to_id = ? AND seen_at IS NULL
`

// MarkNotificationSeenParams はMarkNotificationSeenの引数。
type MarkNotificationSeenParams struct {
	SeenAt sql.NullInt64
	ID     string
	ToID   string
}

// MarkNotificationSeen は未読の通知に既読日時を設定し、更新した行数を返す。
func (q *Queries) MarkNotificationSeen(ctx context.Context, arg MarkNotificationSeenParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, markNotificationSeen, arg.SeenAt, arg.ID, arg.ToID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
