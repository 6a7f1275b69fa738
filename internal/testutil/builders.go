package testutil

import (
	"time"

	"github.com/wesm/vaultsearch/internal/entity"
)

// BaseTime is the receive time NewMail uses when none is set.
var BaseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

// MailBuilder provides a fluent API for constructing entity.Mail in tests.
type MailBuilder struct {
	m entity.Mail
}

// NewMail creates a builder with sensible defaults for a mail in listID.
func NewMail(listID, elementID string) *MailBuilder {
	return &MailBuilder{
		m: entity.Mail{
			ID:         entity.ID{ListID: listID, ElementID: elementID},
			Subject:    "Test Subject",
			Sender:     "sender@example.com",
			Recipients: []string{"me@example.com"},
			ReceivedAt: BaseTime,
		},
	}
}

func (b *MailBuilder) WithSubject(s string) *MailBuilder {
	b.m.Subject = s
	return b
}

func (b *MailBuilder) WithBody(s string) *MailBuilder {
	b.m.Body = s
	return b
}

func (b *MailBuilder) WithSender(s string) *MailBuilder {
	b.m.Sender = s
	return b
}

func (b *MailBuilder) WithRecipients(r ...string) *MailBuilder {
	b.m.Recipients = r
	return b
}

func (b *MailBuilder) WithReceivedAt(t time.Time) *MailBuilder {
	b.m.ReceivedAt = t
	return b
}

// ReceivedDaysAgo sets the receive time relative to now.
func (b *MailBuilder) ReceivedDaysAgo(days int) *MailBuilder {
	b.m.ReceivedAt = time.Now().UTC().AddDate(0, 0, -days).Truncate(time.Millisecond)
	return b
}

func (b *MailBuilder) Build() *entity.Mail {
	m := b.m
	return &m
}

// ContactBuilder provides a fluent API for constructing entity.Contact in tests.
type ContactBuilder struct {
	c entity.Contact
}

// NewContact creates a builder for a contact in the "contacts" list.
func NewContact(elementID, first, last string) *ContactBuilder {
	return &ContactBuilder{
		c: entity.Contact{
			ID:        entity.ID{ListID: "contacts", ElementID: elementID},
			FirstName: first,
			LastName:  last,
		},
	}
}

func (b *ContactBuilder) WithEmail(e string) *ContactBuilder {
	b.c.Email = e
	return b
}

func (b *ContactBuilder) WithCompany(c string) *ContactBuilder {
	b.c.Company = c
	return b
}

func (b *ContactBuilder) WithComment(c string) *ContactBuilder {
	b.c.Comment = c
	return b
}

func (b *ContactBuilder) Build() *entity.Contact {
	c := b.c
	return &c
}
