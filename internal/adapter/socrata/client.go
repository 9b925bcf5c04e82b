package socrata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/civicdata/inspection-etl/internal/domain"
)

// Client fetches inspection rows from a Socrata open-data CSV endpoint.
type Client struct {
	endpoint   string
	appToken   string
	pageSize   int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Socrata dataset client. The app token is optional;
// anonymous requests work but are throttled harder.
func NewClient(endpoint, appToken string, pageSize int, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		appToken: appToken,
		pageSize: pageSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchAll pages through the dataset with $limit/$offset until a short page
// or maxRows is reached. maxRows <= 0 means no cap.
func (c *Client) FetchAll(ctx context.Context, maxRows int) ([]domain.RawRow, error) {
	var rows []domain.RawRow

	for offset := 0; ; offset += c.pageSize {
		page, err := c.fetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
		c.logger.Info("fetched page", "offset", offset, "rows", len(page), "total", len(rows))

		if maxRows > 0 && len(rows) >= maxRows {
			rows = rows[:maxRows]
			break
		}
		if len(page) < c.pageSize {
			break
		}
	}

	return rows, nil
}

func (c *Client) fetchPage(ctx context.Context, offset int) ([]domain.RawRow, error) {
	params := url.Values{
		"$limit":  {strconv.Itoa(c.pageSize)},
		"$offset": {strconv.Itoa(offset)},
		"$order":  {":id"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.appToken != "" {
		req.Header.Set("X-App-Token", c.appToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page at offset %d: %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("socrata API error: status %d: %s", resp.StatusCode, body)
	}

	return decodeRows(resp.Body)
}

// decodeRows reads a CSV stream into field-name keyed rows. Short records
// are tolerated; the missing trailing fields stay absent.
func decodeRows(r io.Reader) ([]domain.RawRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var rows []domain.RawRow
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		row := make(domain.RawRow, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
