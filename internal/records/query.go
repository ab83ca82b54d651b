package records

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// SortField is a whitelisted retrieval sort column.
type SortField string

const (
	SortRetrievalDate SortField = "retrieval_date"
	SortCreatedAt     SortField = "created_at"
)

type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// RetrievalQuery filters and pages ListRetrievals. Zero values mean no filter.
// From is inclusive and Before is exclusive.
type RetrievalQuery struct {
	ClientID string
	BoxID    string
	From     time.Time
	Before   time.Time
	Search   string
	// AwaitingClientSignature keeps only retrievals the client has not signed.
	AwaitingClientSignature bool
	Sort                    SortField
	Order                   SortOrder
	Page                    int
	Limit                   int
}

// Offset is the number of rows skipped for the current page.
func (q RetrievalQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Normalize fills defaults and rejects values outside the whitelist.
func (q RetrievalQuery) Normalize() (RetrievalQuery, error) {
	switch q.Sort {
	case "":
		q.Sort = SortRetrievalDate
	case SortRetrievalDate, SortCreatedAt:
	default:
		return q, fmt.Errorf("%w: sort must be retrieval_date or created_at", ErrInvalidInput)
	}
	switch q.Order {
	case "":
		q.Order = OrderDesc
	case OrderAsc, OrderDesc:
	default:
		return q, fmt.Errorf("%w: order must be asc or desc", ErrInvalidInput)
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 1 {
		return q, fmt.Errorf("%w: page must be positive", ErrInvalidInput)
	}
	if q.Limit == 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit < 1 || q.Limit > MaxPageLimit {
		return q, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxPageLimit)
	}
	if !q.From.IsZero() && !q.Before.IsZero() && !q.Before.After(q.From) {
		return q, fmt.Errorf("%w: end_date is before start_date", ErrInvalidInput)
	}
	q.Search = strings.TrimSpace(q.Search)
	return q, nil
}

// ParseRetrievalQuery reads client_id, box_id, start_date, end_date, search,
// pending, sort_by, sort_order, page and limit from query parameters.
func ParseRetrievalQuery(values url.Values) (RetrievalQuery, error) {
	q := RetrievalQuery{
		ClientID: strings.TrimSpace(values.Get("client_id")),
		BoxID:    strings.TrimSpace(values.Get("box_id")),
		Search:   values.Get("search"),
		Sort:     SortField(strings.ToLower(strings.TrimSpace(values.Get("sort_by")))),
		Order:    SortOrder(strings.ToLower(strings.TrimSpace(values.Get("sort_order")))),
	}
	var err error
	if q.From, err = parseDate(values.Get("start_date"), "start_date"); err != nil {
		return q, err
	}
	if q.Before, err = parseEndDate(values.Get("end_date")); err != nil {
		return q, err
	}
	if raw := strings.TrimSpace(values.Get("pending")); raw != "" {
		if q.AwaitingClientSignature, err = strconv.ParseBool(raw); err != nil {
			return q, fmt.Errorf("%w: pending must be true or false", ErrInvalidInput)
		}
	}
	if q.Page, err = parsePositive(values.Get("page"), "page"); err != nil {
		return q, err
	}
	if q.Limit, err = parsePositive(values.Get("limit"), "limit"); err != nil {
		return q, err
	}
	return q.Normalize()
}

func parsePositive(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidInput, name)
	}
	return n, nil
}

// ParseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseDate(raw, name string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	t, err := ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be a date", ErrInvalidInput, name)
	}
	return t, nil
}

// parseEndDate turns an inclusive end_date into an exclusive bound. A plain
// date covers the whole day; a timestamp covers itself at the microsecond
// precision the database keeps.
func parseEndDate(raw string) (time.Time, error) {
	t, err := parseDate(raw, "end_date")
	if err != nil || t.IsZero() {
		return t, err
	}
	if _, err := time.Parse(time.DateOnly, strings.TrimSpace(raw)); err == nil {
		return t.AddDate(0, 0, 1), nil
	}
	return t.Add(time.Microsecond), nil
}

// Page is one page of a listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}
