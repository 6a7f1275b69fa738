package store

import (
	"database/sql"
	"fmt"

	"github.com/wesm/vaultsearch/internal/entity"
)

// Folder types. Spam folders hold mail that is indexed but never offered as
// a search filter.
const (
	FolderInbox   = "inbox"
	FolderSent    = "sent"
	FolderTrash   = "trash"
	FolderArchive = "archive"
	FolderSpam    = "spam"
	FolderDraft   = "draft"
	FolderCustom  = "custom"
)

// Folder is a mail folder. Its ListID is the list id of the mails it contains.
type Folder struct {
	ListID  string `json:"list_id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Mailbox string `json:"mailbox,omitempty"`
}

// UpsertFolder inserts or updates a folder.
func (s *Store) UpsertFolder(f *Folder) error {
	typ := f.Type
	if typ == "" {
		typ = FolderCustom
	}
	_, err := s.db.Exec(`
		INSERT INTO folders (list_id, name, folder_type, mailbox)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(list_id) DO UPDATE SET
			name = excluded.name,
			folder_type = excluded.folder_type,
			mailbox = excluded.mailbox
	`, f.ListID, f.Name, typ, f.Mailbox)
	if err != nil {
		return fmt.Errorf("upsert folder %s: %w", f.ListID, err)
	}
	return nil
}

// ListFolders returns all folders ordered by mailbox and name.
func (s *Store) ListFolders() ([]Folder, error) {
	rows, err := s.db.Query(`
		SELECT list_id, name, folder_type, mailbox
		FROM folders
		ORDER BY mailbox, name, list_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query folders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var folders []Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ListID, &f.Name, &f.Type, &f.Mailbox); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// GetFolder returns the folder with the given list id, or nil if none exists.
func (s *Store) GetFolder(listID string) (*Folder, error) {
	var f Folder
	err := s.db.QueryRow(`
		SELECT list_id, name, folder_type, mailbox FROM folders WHERE list_id = ?
	`, listID).Scan(&f.ListID, &f.Name, &f.Type, &f.Mailbox)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get folder %s: %w", listID, err)
	}
	return &f, nil
}

// DeleteFolder removes a folder and, through the foreign key cascade, its mails.
// Returns false if the folder did not exist.
func (s *Store) DeleteFolder(listID string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM folders WHERE list_id = ?`, listID)
	if err != nil {
		return false, fmt.Errorf("delete folder %s: %w", listID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n > 0, nil
}

// MailIDsInFolder returns the ids of the mails stored in a folder.
func (s *Store) MailIDsInFolder(listID string) ([]entity.ID, error) {
	rows, err := s.db.Query(`SELECT element_id FROM mails WHERE list_id = ? ORDER BY element_id`, listID)
	if err != nil {
		return nil, fmt.Errorf("query mails in folder %s: %w", listID, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []entity.ID
	for rows.Next() {
		id := entity.ID{ListID: listID}
		if err := rows.Scan(&id.ElementID); err != nil {
			return nil, fmt.Errorf("scan mail id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
