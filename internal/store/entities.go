package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/wesm/vaultsearch/internal/entity"
)

// UpsertMail inserts or updates a mail. The mail's list id must name an
// existing folder; otherwise ErrUnknownFolder is returned.
func (s *Store) UpsertMail(m *entity.Mail) error {
	_, err := s.db.Exec(`
		INSERT INTO mails (list_id, element_id, subject, body, sender, recipients, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(list_id, element_id) DO UPDATE SET
			subject = excluded.subject,
			body = excluded.body,
			sender = excluded.sender,
			recipients = excluded.recipients,
			received_at = excluded.received_at
	`, m.ID.ListID, m.ID.ElementID, m.Subject, m.Body, m.Sender,
		strings.Join(m.Recipients, "\n"), m.ReceivedAt.UnixMilli())
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("upsert mail %s: %w %q", m.ID, ErrUnknownFolder, m.ID.ListID)
		}
		return fmt.Errorf("upsert mail %s: %w", m.ID, err)
	}
	return nil
}

// GetMail returns the mail with the given id, or nil if it does not exist.
func (s *Store) GetMail(id entity.ID) (*entity.Mail, error) {
	row := s.db.QueryRow(`
		SELECT list_id, element_id, subject, body, sender, recipients, received_at
		FROM mails WHERE list_id = ? AND element_id = ?
	`, id.ListID, id.ElementID)
	m, err := ScanMail(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mail %s: %w", id, err)
	}
	return m, nil
}

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// MailColumns is the column list ScanMail expects, in order.
const MailColumns = "list_id, element_id, subject, body, sender, recipients, received_at"

// ScanMail scans a row selected with MailColumns.
func ScanMail(row RowScanner) (*entity.Mail, error) {
	var m entity.Mail
	var recipients string
	var receivedAt int64
	if err := row.Scan(&m.ID.ListID, &m.ID.ElementID, &m.Subject, &m.Body,
		&m.Sender, &recipients, &receivedAt); err != nil {
		return nil, err
	}
	if recipients != "" {
		m.Recipients = strings.Split(recipients, "\n")
	}
	m.ReceivedAt = time.UnixMilli(receivedAt).UTC()
	return &m, nil
}

// DeleteMail removes a mail. Returns false if it did not exist.
func (s *Store) DeleteMail(id entity.ID) (bool, error) {
	return s.deleteRow("mails", id)
}

// UpsertContact inserts or updates a contact.
func (s *Store) UpsertContact(c *entity.Contact) error {
	_, err := s.db.Exec(`
		INSERT INTO contacts (list_id, element_id, first_name, last_name, email, company, comment)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(list_id, element_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			company = excluded.company,
			comment = excluded.comment
	`, c.ID.ListID, c.ID.ElementID, c.FirstName, c.LastName, c.Email, c.Company, c.Comment)
	if err != nil {
		return fmt.Errorf("upsert contact %s: %w", c.ID, err)
	}
	return nil
}

// ContactColumns is the column list ScanContact expects, in order.
const ContactColumns = "list_id, element_id, first_name, last_name, email, company, comment"

// ScanContact scans a row selected with ContactColumns.
func ScanContact(row RowScanner) (*entity.Contact, error) {
	var c entity.Contact
	if err := row.Scan(&c.ID.ListID, &c.ID.ElementID, &c.FirstName, &c.LastName,
		&c.Email, &c.Company, &c.Comment); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetContact returns the contact with the given id, or nil if it does not exist.
func (s *Store) GetContact(id entity.ID) (*entity.Contact, error) {
	row := s.db.QueryRow(`SELECT `+ContactColumns+`
		FROM contacts WHERE list_id = ? AND element_id = ?`, id.ListID, id.ElementID)
	c, err := ScanContact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact %s: %w", id, err)
	}
	return c, nil
}

// DeleteContact removes a contact. Returns false if it did not exist.
func (s *Store) DeleteContact(id entity.ID) (bool, error) {
	return s.deleteRow("contacts", id)
}

// MoveMail moves a mail to another folder, keeping its element id.
func (s *Store) MoveMail(id entity.ID, toListID string) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE mails SET list_id = ? WHERE list_id = ? AND element_id = ?`,
			toListID, id.ListID, id.ElementID)
		if err != nil {
			if isForeignKeyError(err) {
				return fmt.Errorf("move mail %s: %w %q", id, ErrUnknownFolder, toListID)
			}
			return fmt.Errorf("move mail %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("mail %s not found", id)
		}
		return nil
	})
}

// deleteRow deletes by composite id from a table known at compile time.
func (s *Store) deleteRow(table string, id entity.ID) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM `+table+` WHERE list_id = ? AND element_id = ?`,
		id.ListID, id.ElementID)
	if err != nil {
		return false, fmt.Errorf("delete from %s %s: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n > 0, nil
}
