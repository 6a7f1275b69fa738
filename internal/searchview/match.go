package searchview

import (
	"strings"

	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/restriction"
	"github.com/wesm/vaultsearch/internal/search"
)

// matcher decides whether a newly created entity belongs to the current
// result. It mirrors the filtering the engine applies to a query.
type matcher func(e entity.Entity) bool

func newMatcher(text string, r restriction.Restriction, cov query.Coverage) matcher {
	q := search.Parse(text)
	return func(e entity.Entity) bool {
		if e.EntityType() != r.EntityType() {
			return false
		}
		switch v := e.(type) {
		case *entity.Mail:
			return matchMail(q, r, cov, v)
		case *entity.Contact:
			return q.Match(v.FirstName, v.LastName, v.Email, v.Company, v.Comment)
		default:
			return false
		}
	}
}

func matchMail(q *search.Query, r restriction.Restriction, cov query.Coverage, m *entity.Mail) bool {
	if !cov.Covers(m.ReceivedAt) {
		return false
	}
	if r.Start != nil && m.ReceivedAt.Before(*r.Start) {
		return false
	}
	if r.End != nil && m.ReceivedAt.After(*r.End) {
		return false
	}
	if r.FolderID != "" && m.ID.ListID != r.FolderID {
		return false
	}

	recipients := strings.Join(m.Recipients, "\n")
	switch r.Field {
	case restriction.FieldSubject:
		return q.Match(m.Subject)
	case restriction.FieldBody:
		return q.Match(m.Body)
	case restriction.FieldSender:
		return q.Match(m.Sender)
	case restriction.FieldTo:
		return q.Match(recipients)
	default:
		return q.Match(m.Subject, m.Body, m.Sender, recipients)
	}
}
