// Package restriction converts between search restrictions and the canonical
// search URL.
//
// URLs have the shape
//
//	/search/{category}?query={text}&start={ms}&end={ms}&field={field}&folder={listID}&id={elementID}
//
// where start, end, field and folder are only written for mail searches.
package restriction

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wesm/vaultsearch/internal/entity"
)

// PathPrefix is the route prefix owned by the search view.
const PathPrefix = "/search"

// ErrInvalidRestriction is returned by Decode when the URL does not describe
// a known search category or carries malformed restriction parameters.
var ErrInvalidRestriction = errors.New("invalid search restriction")

// Category is the top-level search scope.
type Category string

const (
	CategoryMail    Category = "mail"
	CategoryContact Category = "contact"
)

// EntityType returns the entity type searched by the category.
func (c Category) EntityType() entity.Type {
	switch c {
	case CategoryContact:
		return entity.TypeContact
	default:
		return entity.TypeMail
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryMail || c == CategoryContact
}

// Field limits a mail search to one attribute. The zero value searches all.
type Field string

const (
	FieldAll     Field = ""
	FieldSubject Field = "subject"
	FieldBody    Field = "body"
	FieldSender  Field = "from"
	FieldTo      Field = "to"
)

// Fields lists the selectable mail fields in display order.
var Fields = []Field{FieldAll, FieldSubject, FieldBody, FieldSender, FieldTo}

// Valid reports whether f is a known field.
func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// Restriction is the structured search scope.
type Restriction struct {
	Category Category
	// Start is the oldest included instant, End the newest. Nil means unbounded.
	Start *time.Time
	End   *time.Time
	Field Field
	// FolderID is the mail list id of the folder to search. Empty means all folders.
	FolderID string
}

// Mail returns an unfiltered mail restriction.
func Mail() Restriction {
	return Restriction{Category: CategoryMail}
}

// Contact returns a contact restriction.
func Contact() Restriction {
	return Restriction{Category: CategoryContact}
}

// EntityType returns the entity type the restriction searches.
func (r Restriction) EntityType() entity.Type {
	return r.Category.EntityType()
}

// Normalize clears the fields that are not meaningful for the category and
// truncates timestamps to the millisecond precision carried in URLs.
func (r Restriction) Normalize() Restriction {
	if r.Category != CategoryMail {
		return Restriction{Category: r.Category}
	}
	r.Start = truncMillis(r.Start)
	r.End = truncMillis(r.End)
	return r
}

// Equal reports whether two restrictions describe the same scope.
func (r Restriction) Equal(o Restriction) bool {
	a, b := r.Normalize(), o.Normalize()
	return a.Category == b.Category &&
		timesEqual(a.Start, b.Start) &&
		timesEqual(a.End, b.End) &&
		a.Field == b.Field &&
		a.FolderID == b.FolderID
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func truncMillis(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := time.UnixMilli(t.UnixMilli())
	return &v
}

// Encode builds the search URL for r. queryText is always written, so an
// empty query yields "query=". selectedID is omitted when empty.
func Encode(r Restriction, queryText, selectedID string) string {
	r = r.Normalize()
	if !r.Category.Valid() {
		r.Category = CategoryMail
	}

	params := url.Values{}
	params.Set("query", queryText)
	if r.Category == CategoryMail {
		if r.Start != nil {
			params.Set("start", strconv.FormatInt(r.Start.UnixMilli(), 10))
		}
		if r.End != nil {
			params.Set("end", strconv.FormatInt(r.End.UnixMilli(), 10))
		}
		if r.Field != FieldAll {
			params.Set("field", string(r.Field))
		}
		if r.FolderID != "" {
			params.Set("folder", r.FolderID)
		}
	}
	if selectedID != "" {
		params.Set("id", selectedID)
	}
	return PathPrefix + "/" + string(r.Category) + "?" + params.Encode()
}

// Decode parses the restriction from a search URL (path plus query string).
func Decode(rawURL string) (Restriction, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Restriction{}, fmt.Errorf("%w: %v", ErrInvalidRestriction, err)
	}

	category, ok := categoryFromPath(u.Path)
	if !ok {
		return Restriction{}, fmt.Errorf("%w: unknown category in %q", ErrInvalidRestriction, u.Path)
	}

	r := Restriction{Category: category}
	if category != CategoryMail {
		return r, nil
	}

	params := u.Query()
	if r.Start, err = parseMillis(params, "start"); err != nil {
		return Restriction{}, err
	}
	if r.End, err = parseMillis(params, "end"); err != nil {
		return Restriction{}, err
	}
	r.Field = Field(params.Get("field"))
	if !r.Field.Valid() {
		return Restriction{}, fmt.Errorf("%w: unknown field %q", ErrInvalidRestriction, r.Field)
	}
	r.FolderID = params.Get("folder")
	return r, nil
}

func categoryFromPath(path string) (Category, bool) {
	rest, ok := strings.CutPrefix(path, PathPrefix+"/")
	if !ok {
		return "", false
	}
	segment, _, _ := strings.Cut(rest, "/")
	c := Category(segment)
	return c, c.Valid()
}

func parseMillis(params url.Values, key string) (*time.Time, error) {
	v := params.Get(key)
	if v == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidRestriction, key, v)
	}
	t := time.UnixMilli(ms)
	return &t, nil
}

// Args are the non-restriction parts of a search URL.
type Args struct {
	Query string
	// HasQuery distinguishes "query=" from a URL without a query parameter.
	HasQuery bool
	// ID is the selected element id, empty when nothing is selected.
	ID string
}

// ParseArgs extracts the query text and selected id from a search URL.
// Unparseable URLs yield zero Args.
func ParseArgs(rawURL string) Args {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Args{}
	}
	params := u.Query()
	_, hasQuery := params["query"]
	return Args{
		Query:    params.Get("query"),
		HasQuery: hasQuery,
		ID:       params.Get("id"),
	}
}

// InScope reports whether path is a route handled by the search view.
func InScope(path string) bool {
	return path == PathPrefix || strings.HasPrefix(path, PathPrefix+"/") || strings.HasPrefix(path, PathPrefix+"?")
}

// DateLayout is the day format accepted by ParseDay.
const DateLayout = "2006-01-02"

// ParseDay parses a day in the local time zone. An empty string yields nil.
func ParseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidRestriction, s)
	}
	return &t, nil
}

// Params is a restriction as entered by a user: days instead of instants
// and names instead of typed values. Empty members are unrestricted.
type Params struct {
	Category string `json:"category,omitempty"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
	Field    string `json:"field,omitempty"`
	FolderID string `json:"folder_id,omitempty"`
}

// Restriction validates p. Start covers its whole day from midnight and End
// through its last millisecond.
func (p Params) Restriction() (Restriction, error) {
	r := Restriction{Category: Category(p.Category), Field: Field(p.Field), FolderID: p.FolderID}
	if r.Category == "" {
		r.Category = CategoryMail
	}
	if !r.Category.Valid() {
		return Restriction{}, fmt.Errorf("%w: unknown category %q", ErrInvalidRestriction, p.Category)
	}
	if !r.Field.Valid() {
		return Restriction{}, fmt.Errorf("%w: unknown field %q", ErrInvalidRestriction, p.Field)
	}
	var err error
	if r.Start, err = ParseDay(p.Start); err != nil {
		return Restriction{}, err
	}
	if r.End, err = ParseDay(p.End); err != nil {
		return Restriction{}, err
	}
	if r.End != nil {
		end := r.End.AddDate(0, 0, 1).Add(-time.Millisecond)
		r.End = &end
	}
	if r.Start != nil && r.End != nil && r.End.Before(*r.Start) {
		return Restriction{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidRestriction, p.End, p.Start)
	}
	return r.Normalize(), nil
}
