// Package entity defines the searchable entities (mail and contacts) and the
// change events the server emits for them.
package entity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type identifies the kind of an entity as carried in change events.
type Type string

const (
	TypeMail    Type = "mail"
	TypeContact Type = "contact"

	// TypeFolder events report folder changes; folders are filter options,
	// not results.
	TypeFolder Type = "folder"
)

// Searchable reports whether entities of this type can appear in search results.
// Events for other types (mail bodies, folders, ...) are ignored by the view.
func (t Type) Searchable() bool {
	return t == TypeMail || t == TypeContact
}

// Descending reports whether result lists of this type sort newest first.
func (t Type) Descending() bool {
	return t == TypeMail
}

// ID is the composite identifier of a list element: the list (folder) that
// contains it and its element id within that list.
type ID struct {
	ListID    string `json:"list_id"`
	ElementID string `json:"element_id"`
}

func (id ID) String() string {
	return id.ListID + "/" + id.ElementID
}

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool {
	return id.ListID == "" && id.ElementID == ""
}

// Entity is implemented by every searchable entity.
type Entity interface {
	EntityID() ID
	EntityType() Type
	// SortKey orders entities in a result list; see Type.Descending.
	SortKey() string
}

// Mail is a stored mail.
type Mail struct {
	ID         ID        `json:"id"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Sender     string    `json:"sender"`
	Recipients []string  `json:"recipients"`
	ReceivedAt time.Time `json:"received_at"`
}

func (m *Mail) EntityID() ID     { return m.ID }
func (m *Mail) EntityType() Type { return TypeMail }

// SortKey is the fixed-width UTC receive time so that keys compare
// lexicographically in time order.
func (m *Mail) SortKey() string {
	return m.ReceivedAt.UTC().Format("20060102150405.000")
}

// Contact is a stored contact.
type Contact struct {
	ID        ID     `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Company   string `json:"company"`
	Comment   string `json:"comment"`
}

func (c *Contact) EntityID() ID     { return c.ID }
func (c *Contact) EntityType() Type { return TypeContact }

func (c *Contact) SortKey() string {
	return strings.ToLower(strings.TrimSpace(c.LastName + " " + c.FirstName))
}

// Operation is the kind of change an Update reports.
type Operation int

const (
	OpCreate Operation = iota + 1
	OpUpdate
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// ParseOperation parses the wire name of an operation.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(s) {
	case "create", "0":
		return OpCreate, nil
	case "update", "1":
		return OpUpdate, nil
	case "delete", "2":
		return OpDelete, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", s)
	}
}

func (o Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("operation: %w", err)
	}
	op, err := ParseOperation(s)
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// Update is a single entity change notification.
type Update struct {
	Type      Type      `json:"type"`
	ID        ID        `json:"id"`
	Operation Operation `json:"operation"`
}
