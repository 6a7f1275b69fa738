// Package importer writes entities to the store and announces each change
// as an entity update. It is the shared write path of the API, the MCP
// server and the CLI.
package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/store"
)

// Publisher receives the updates caused by a write.
type Publisher interface {
	Publish(updates []entity.Update)
}

// Importer writes entities and publishes the matching updates.
type Importer struct {
	st     *store.Store
	pub    Publisher
	logger *slog.Logger
}

// New creates an importer. pub may be nil when nobody listens for updates.
func New(st *store.Store, pub Publisher, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{st: st, pub: pub, logger: logger}
}

func (im *Importer) publish(updates ...entity.Update) {
	if im.pub == nil {
		return
	}
	im.pub.Publish(updates)
}

func operation(existed bool) entity.Operation {
	if existed {
		return entity.OpUpdate
	}
	return entity.OpCreate
}

// PutMail stores m and reports whether it was created or updated.
func (im *Importer) PutMail(ctx context.Context, m *entity.Mail) (entity.Operation, error) {
	if err := validID(m.ID); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	old, err := im.st.GetMail(m.ID)
	if err != nil {
		return 0, err
	}
	if err := im.st.UpsertMail(m); err != nil {
		return 0, err
	}
	op := operation(old != nil)
	im.logger.Debug("stored mail", "id", m.ID.String(), "operation", op.String())
	im.publish(entity.Update{Type: entity.TypeMail, ID: m.ID, Operation: op})
	return op, nil
}

// PutContact stores c and reports whether it was created or updated.
func (im *Importer) PutContact(ctx context.Context, c *entity.Contact) (entity.Operation, error) {
	if err := validID(c.ID); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	old, err := im.st.GetContact(c.ID)
	if err != nil {
		return 0, err
	}
	if err := im.st.UpsertContact(c); err != nil {
		return 0, err
	}
	op := operation(old != nil)
	im.logger.Debug("stored contact", "id", c.ID.String(), "operation", op.String())
	im.publish(entity.Update{Type: entity.TypeContact, ID: c.ID, Operation: op})
	return op, nil
}

// PutFolder stores f and reports whether it was created or updated.
func (im *Importer) PutFolder(ctx context.Context, f *store.Folder) (entity.Operation, error) {
	if f.ListID == "" {
		return 0, fmt.Errorf("folder: %w", ErrMissingID)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	old, err := im.st.GetFolder(f.ListID)
	if err != nil {
		return 0, err
	}
	if err := im.st.UpsertFolder(f); err != nil {
		return 0, err
	}
	op := operation(old != nil)
	im.publish(entity.Update{Type: entity.TypeFolder, ID: entity.ID{ListID: f.ListID}, Operation: op})
	return op, nil
}

// Delete removes a mail or contact. It returns false when nothing was stored
// under id; no update is published then.
func (im *Importer) Delete(ctx context.Context, typ entity.Type, id entity.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var (
		deleted bool
		err     error
	)
	switch typ {
	case entity.TypeMail:
		deleted, err = im.st.DeleteMail(id)
	case entity.TypeContact:
		deleted, err = im.st.DeleteContact(id)
	default:
		return false, fmt.Errorf("delete %s: %w", typ, ErrUnsupportedType)
	}
	if err != nil || !deleted {
		return false, err
	}
	im.publish(entity.Update{Type: typ, ID: id, Operation: entity.OpDelete})
	return true, nil
}

// DeleteFolder removes a folder together with its mails. Each removed mail
// is announced before the folder itself.
func (im *Importer) DeleteFolder(ctx context.Context, listID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ids, err := im.st.MailIDsInFolder(listID)
	if err != nil {
		return false, err
	}
	deleted, err := im.st.DeleteFolder(listID)
	if err != nil || !deleted {
		return false, err
	}
	updates := make([]entity.Update, 0, len(ids)+1)
	for _, id := range ids {
		updates = append(updates, entity.Update{Type: entity.TypeMail, ID: id, Operation: entity.OpDelete})
	}
	updates = append(updates, entity.Update{Type: entity.TypeFolder, ID: entity.ID{ListID: listID}, Operation: entity.OpDelete})
	im.publish(updates...)
	return true, nil
}

// MoveMail moves a mail to another folder. Its list id changes, so the view
// sees the move as a delete followed by a create.
func (im *Importer) MoveMail(ctx context.Context, id entity.ID, toListID string) (entity.ID, error) {
	if err := ctx.Err(); err != nil {
		return entity.ID{}, err
	}
	if err := im.st.MoveMail(id, toListID); err != nil {
		return entity.ID{}, err
	}
	moved := entity.ID{ListID: toListID, ElementID: id.ElementID}
	im.publish(
		entity.Update{Type: entity.TypeMail, ID: id, Operation: entity.OpDelete},
		entity.Update{Type: entity.TypeMail, ID: moved, Operation: entity.OpCreate},
	)
	return moved, nil
}

// Record is one line of a JSON lines import.
type Record struct {
	Type    entity.Type     `json:"type"`
	Mail    *entity.Mail    `json:"mail,omitempty"`
	Contact *entity.Contact `json:"contact,omitempty"`
	Folder  *store.Folder   `json:"folder,omitempty"`
}

// Summary counts the outcome of an import.
type Summary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

func (s *Summary) add(op entity.Operation) {
	if op == entity.OpCreate {
		s.Created++
	} else {
		s.Updated++
	}
}

// ImportJSONL reads one Record per line. Malformed or rejected records are
// logged and counted; the import continues with the next line.
func (im *Importer) ImportJSONL(ctx context.Context, r io.Reader) (Summary, error) {
	var sum Summary
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			im.logger.Warn("skipping malformed record", "line", line, "error", err)
			sum.Failed++
			continue
		}
		op, err := im.putRecord(ctx, &rec)
		if err != nil {
			im.logger.Warn("skipping record", "line", line, "error", err)
			sum.Failed++
			continue
		}
		sum.add(op)
	}
	if err := scanner.Err(); err != nil {
		return sum, fmt.Errorf("read import: %w", err)
	}
	return sum, nil
}

func (im *Importer) putRecord(ctx context.Context, rec *Record) (entity.Operation, error) {
	switch {
	case rec.Type == entity.TypeMail && rec.Mail != nil:
		return im.PutMail(ctx, rec.Mail)
	case rec.Type == entity.TypeContact && rec.Contact != nil:
		return im.PutContact(ctx, rec.Contact)
	case rec.Type == entity.TypeFolder && rec.Folder != nil:
		return im.PutFolder(ctx, rec.Folder)
	default:
		return 0, fmt.Errorf("record of type %q: %w", rec.Type, ErrUnsupportedType)
	}
}

var (
	// ErrMissingID is returned for entities without a list or element id.
	ErrMissingID = errors.New("missing id")
	// ErrUnsupportedType is returned for entity types that cannot be written.
	ErrUnsupportedType = errors.New("unsupported entity type")
)

func validID(id entity.ID) error {
	if id.ListID == "" || id.ElementID == "" {
		return fmt.Errorf("entity %q: %w", id.String(), ErrMissingID)
	}
	return nil
}
