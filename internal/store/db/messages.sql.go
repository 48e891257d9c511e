package db

import (
	"context"
	"database/sql"
)

const createMessage = `
INSERT INTO messages (id, sender_id, recipient_id, body, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING rowid
`

// CreateMessageParams はCreateMessageの引数。
type CreateMessageParams struct {
	ID          string
	SenderID    string
	RecipientID string
	Body        string
	CreatedAt   int64
}

// CreateMessage はメッセージを作成し、到着順を表すrowidを返す。
func (q *Queries) CreateMessage(ctx context.Context, arg CreateMessageParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createMessage,
		arg.ID,
		arg.SenderID,
		arg.RecipientID,
		arg.Body,
		arg.CreatedAt,
	)
	var rowid int64
	err := row.Scan(&rowid)
	return rowid, err
}

const getMessage = `
SELECT id, sender_id, recipient_id, body, created_at, seen_at, rowid
FROM messages
WHERE id = ?
`

// GetMessage はメッセージをIDで取得する。
func (q *Queries) GetMessage(ctx context.Context, id string) (Message, error) {
	row := q.db.QueryRowContext(ctx, getMessage, id)
	var i Message
	err := row.Scan(
		&i.ID,
		&i.SenderID,
		&i.RecipientID,
		&i.Body,
		&i.CreatedAt,
		&i.SeenAt,
		&i.Rowid,
	)
	return i, err
}

const listConversationEntries = `
SELECT m.id, m.sender_id, m.recipient_id, m.body, m.created_at, m.seen_at, m.rowid,
       u.id, u.first_name, u.last_name, u.path, u.image, u.profile_image
FROM messages m
JOIN users u
  ON u.id = CASE WHEN m.sender_id = ?1 THEN m.recipient_id ELSE m.sender_id END
WHERE m.sender_id = ?1 OR m.recipient_id = ?1
ORDER BY m.created_at, m.rowid
`

// ListConversationEntriesRow はメッセージと会話相手の表示情報の組。
type ListConversationEntriesRow struct {
	Message                 Message
	CounterpartID           string
	CounterpartFirstName    string
	CounterpartLastName     string
	CounterpartPath         string
	CounterpartImage        string
	CounterpartProfileImage string
}

// ListConversationEntries はユーザーが送受信したすべてのメッセージを会話相手と共に取得する。
func (q *Queries) ListConversationEntries(ctx context.Context, userID string) ([]ListConversationEntriesRow, error) {
	rows, err := q.db.QueryContext(ctx, listConversationEntries, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListConversationEntriesRow
	for rows.Next() {
		var i ListConversationEntriesRow
		if err := rows.Scan(
			&i.Message.ID,
			&i.Message.SenderID,
			&i.Message.RecipientID,
			&i.Message.Body,
			&i.Message.CreatedAt,
			&i.Message.SeenAt,
			&i.Message.Rowid,
			&i.CounterpartID,
			&i.CounterpartFirstName,
			&i.CounterpartLastName,
			&i.CounterpartPath,
			&i.CounterpartImage,
			&i.CounterpartProfileImage,
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

const listMessagesBetween = `
SELECT id, sender_id, recipient_id, body, created_at, seen_at, rowid
FROM messages
WHERE (sender_id = ?1 AND recipient_id = ?2)
   OR (sender_id = ?2 AND recipient_id = ?1)
ORDER BY created_at, rowid
`

// ListMessagesBetweenParams はListMessagesBetweenの引数。
type ListMessagesBetweenParams struct {
	UserID  string
	OtherID string
}

// ListMessagesBetween は2人の間のメッセージを古い順に取得する。
func (q *Queries) ListMessagesBetween(ctx context.Context, arg ListMessagesBetweenParams) ([]Message, error) {
	rows, err := q.db.QueryContext(ctx, listMessagesBetween, arg.UserID, arg.OtherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Message
	for rows.Next() {
		var i Message
		if err := rows.Scan(
			&i.ID,
			&i.SenderID,
			&i.RecipientID,
			&i.Body,
			&i.CreatedAt,
			&i.SeenAt,
			&i.Rowid,
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

const markMessageSeen = `
UPDATE messages SET seen_at = ?
WHERE id = ? AND recipient_id = ? AND seen_at IS NULL
`

// MarkMessageSeenParams はMarkMessageSeenの引数。
type MarkMessageSeenParams struct {
	SeenAt      sql.NullInt64
	ID          string
	RecipientID string
}

// MarkMessageSeen は未読のメッセージに既読日時を設定し、更新した行数を返す。
// 既読済みのメッセージは変更しない。
func (q *Queries) MarkMessageSeen(ctx context.Context, arg MarkMessageSeenParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, markMessageSeen, arg.SeenAt, arg.ID, arg.RecipientID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
