// Package opac reads the current loans from a library OPAC portal.
package opac

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"loancal/internal/models"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"
)

const (
	loginPath = "/comidf.do"
	loansPath = "/lenlst.do"

	// DefaultListCount is the number of loan rows requested per page.
	DefaultListCount = 20

	loanTableClass = "opac_data_list_ex"
	reservedLabel  = "予約有"
	portalDate     = "2006/01/02"
)

// Column indexes of the loan table.
const (
	colReserved = 2
	colLender   = 3
	colHolder   = 4
	colDue      = 5
	colLent     = 6
	colTitle    = 7
	minColumns  = colTitle + 1
)

// ParseError reports a loan table that does not have the expected shape.
type ParseError struct {
	Row   int // 1-based data row, 0 for the table itself
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("opac: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("opac: row %d: %s: %v", e.Row, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Session is a logged-in portal session. It owns its cookie jar, so each run
// gets a fresh one.
type Session struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
}

// NewSession creates a session against the portal at baseURL.
func NewSession(logger *slog.Logger, baseURL string) (*Session, error) {
	if baseURL == "" {
		return nil, errors.New("portal base url is required")
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &Session{
		client:  &http.Client{Jar: jar, Timeout: 30 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}, nil
}

// Login authenticates the session.
func (s *Session) Login(ctx context.Context, userID, password string) error {
	form := url.Values{}
	form.Set("userid", userID)
	form.Set("password", password)

	body, err := s.post(ctx, loginPath, form)
	if err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}
	defer body.Close()
	_, _ = io.Copy(io.Discard, body)

	s.logger.Debug("Logged in to portal", "userID", userID)
	return nil
}

// Loans fetches and parses the loan list of the logged-in user.
func (s *Session) Loans(ctx context.Context, listCount int) ([]models.Loan, error) {
	if listCount <= 0 {
		listCount = DefaultListCount
	}
	form := url.Values{}
	form.Set("listcnt", strconv.Itoa(listCount))

	body, err := s.post(ctx, loansPath, form)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch loan list: %w", err)
	}
	defer body.Close()

	loans, err := ParseLoans(body)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Fetched loans from portal", "count", len(loans))
	return loans, nil
}

func (s *Session) post(ctx context.Context, path string, form url.Values) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("portal returned status %d for %s", resp.StatusCode, path)
	}
	return resp.Body, nil
}

// ParseLoans extracts the loans from the loan list page. The first row of
// the table is a header.
func ParseLoans(r io.Reader) ([]models.Loan, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, &ParseError{Field: "document", Err: err}
	}

	table := findTable(doc)
	if table == nil {
		return nil, &ParseError{Field: "table", Err: fmt.Errorf("no table with class %q", loanTableClass)}
	}

	rows := findAll(table, "tr")
	if len(rows) == 0 {
		return nil, nil
	}

	loans := make([]models.Loan, 0, len(rows)-1)
	for i, row := range rows[1:] {
		loan, err := parseRow(row)
		if err != nil {
			err.Row = i + 1
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, nil
}

func parseRow(row *html.Node) (models.Loan, *ParseError) {
	var cells []string
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			cells = append(cells, cellText(c))
		}
	}
	if len(cells) < minColumns {
		return models.Loan{}, &ParseError{Field: "columns", Err: fmt.Errorf("got %d, want at least %d", len(cells), minColumns)}
	}

	due, err := time.ParseInLocation(portalDate, cells[colDue], time.UTC)
	if err != nil {
		return models.Loan{}, &ParseError{Field: "due date", Err: err}
	}
	lent, err := time.ParseInLocation(portalDate, cells[colLent], time.UTC)
	if err != nil {
		return models.Loan{}, &ParseError{Field: "lent date", Err: err}
	}
	if cells[colTitle] == "" {
		return models.Loan{}, &ParseError{Field: "title", Err: errors.New("empty")}
	}

	return models.Loan{
		Reserved: cells[colReserved] == reservedLabel,
		Lender:   cells[colLender],
		Holder:   cells[colHolder],
		DueDate:  due,
		LentDate: lent,
		Title:    cells[colTitle],
	}, nil
}

func findTable(n *html.Node) *html.Node {
	for _, t := range findAll(n, "table") {
		if attr(t, "class") == loanTableClass {
			return t
		}
	}
	return nil
}

// findAll returns the descendants of n with the given tag, in document order.
func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == tag {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// cellText concatenates the text of a cell with newlines and tabs removed.
func cellText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.NewReplacer("\n", "", "\t", "").Replace(sb.String())
}
