package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"teams-chat/internal/encryption"
	"teams-chat/internal/models"
)

var ErrInvalidDestination = errors.New("message must have exactly one of receiver or project")

// MessageRepository persists chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error)
	MarkRead(ctx context.Context, conv models.Conversation, readerID int, ids []int) ([]int, error)
}

// MessageRepo is a sqlx-backed repository. Message text is encrypted before it reaches the table.
type MessageRepo struct {
	db     *sqlx.DB
	cipher encryption.Cipher
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB, cipher encryption.Cipher) *MessageRepo {
	return &MessageRepo{db: db, cipher: cipher}
}

// ValidateDestination enforces that exactly one of receiver and project is set.
func ValidateDestination(in models.NewMessage) error {
	hasReceiver := in.ReceiverID != nil && *in.ReceiverID != 0
	hasProject := in.ProjectID != nil && *in.ProjectID != 0
	if hasReceiver == hasProject {
		return ErrInvalidDestination
	}
	return nil
}

// CreateMessage stores a message and returns it with the server assigned id and timestamp.
// A reply-to id that is unknown or belongs to another conversation is stored as NULL.
func (r *MessageRepo) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	if err := ValidateDestination(in); err != nil {
		return models.Message{}, err
	}

	sealed, err := r.cipher.Encrypt(in.Text)
	if err != nil {
		return models.Message{}, fmt.Errorf("encrypt message: %w", err)
	}

	msg := models.Message{
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		ProjectID:  in.ProjectID,
		FileURL:    in.FileURL,
		FileName:   in.FileName,
	}
	// reply_to_id resolves only within the same conversation, otherwise NULL.
	err = r.db.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, receiver_id, project_id, encrypted_text, file_url, file_name, reply_to_id)
        VALUES ($1, $2, $3, $4, $5, $6, (
            SELECT id FROM messages WHERE id = $7 AND (
                project_id = $3
                OR (sender_id = $1 AND receiver_id = $2)
                OR (sender_id = $2 AND receiver_id = $1))))
        RETURNING id, encrypted_text, reply_to_id, is_read, created_at`,
		in.SenderID, in.ReceiverID, in.ProjectID, sealed, in.FileURL, in.FileName, in.ReplyToID).
		Scan(&msg.ID, &msg.EncryptedText, &msg.ReplyToID, &msg.IsRead, &msg.CreatedAt)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if err := r.open(&msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// open fills Text from the stored ciphertext.
func (r *MessageRepo) open(msg *models.Message) error {
	text, err := r.cipher.Decrypt(msg.EncryptedText)
	if err != nil {
		return fmt.Errorf("decrypt message %d: %w", msg.ID, err)
	}
	msg.Text = text
	return nil
}

// MarkRead flips unread messages of the conversation to read and returns the ids that
// actually transitioned. Messages sent by the reader are never touched.
func (r *MessageRepo) MarkRead(ctx context.Context, conv models.Conversation, readerID int, ids []int) ([]int, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `UPDATE messages SET is_read = TRUE
        WHERE id = ANY($1) AND is_read = FALSE AND project_id = $2 AND sender_id <> $3
        RETURNING id`
	args := []interface{}{pq.Array(ids), conv.ProjectID, readerID}
	if conv.Direct() {
		query = `UPDATE messages SET is_read = TRUE
            WHERE id = ANY($1) AND is_read = FALSE AND receiver_id = $2 AND sender_id = $3
            RETURNING id`
		args = []interface{}{pq.Array(ids), readerID, conv.PartnerID}
	}

	var updated []int
	if err := r.db.SelectContext(ctx, &updated, query, args...); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	sort.Ints(updated)
	return updated, nil
}
