package commerce

import (
	"context"
	"net/http"

	"github.com/erp/agreementclone/internal/domain/agreement"
	"go.uber.org/zap"
)

// DefaultPageSize is the number of records requested per page.
const DefaultPageSize = 1000

// Collection is the result of walking every page of a query.
type Collection struct {
	Items []agreement.Record
	Pages int
	// Complete is false when a page failed and Items holds a partial result.
	Complete bool
	Err      error
}

// HasMorePages reports whether the API announces pages after page. Before
// the first page (nil) there is always one more to fetch.
func HasMorePages(page agreement.Record) bool {
	if page == nil {
		return true
	}
	offset := intAt(page, "$meta.pagination.offset")
	limit := intAt(page, "$meta.pagination.limit")
	total := intAt(page, "$meta.pagination.total")
	return offset+limit < total
}

func intAt(rec agreement.Record, path agreement.FieldPath) int64 {
	d, ok := rec.Decimal(path)
	if !ok {
		return 0
	}
	return d.IntPart()
}

// Paginator walks offset/limit paged collections.
type Paginator struct {
	client   *Client
	pageSize int
	logger   *zap.Logger
}

// NewPaginator creates a paginator over client.
func NewPaginator(client *Client) *Paginator {
	return &Paginator{client: client, pageSize: DefaultPageSize, logger: client.logger}
}

// WithPageSize returns a copy of the paginator using size records per page.
// Stages always use DefaultPageSize; this is a tuning and test hook.
func (p *Paginator) WithPageSize(size int) *Paginator {
	cp := *p
	if size > 0 {
		cp.pageSize = size
	}
	return &cp
}

// All fetches every page of q. A failing page ends the walk; what was
// accumulated so far is returned with Complete set to false. Empty pages
// are skipped: the offset moves by the page size, not by the records
// returned. The walk stops only when the offset reported by the API does
// not move forward.
func (p *Paginator) All(ctx context.Context, q Query) Collection {
	var (
		out        Collection
		page       agreement.Record
		offset     int
		lastServed int64 = -1
	)

	for HasMorePages(page) {
		var err error
		page, err = p.client.DoJSON(ctx, Request{Method: http.MethodGet, Path: q.Page(offset, p.pageSize)})
		if err != nil {
			p.logger.Error("Failed to fetch page", zap.Int("offset", offset), zap.Error(err))
			out.Err = err
			return out
		}
		out.Pages++

		data := page.Objects("data")
		out.Items = append(out.Items, data...)
		p.logger.Debug("Fetched page",
			zap.Int("offset", offset),
			zap.Int("items", len(data)),
			zap.Any("meta", page.Get("$meta")),
		)

		served := intAt(page, "$meta.pagination.offset")
		if served <= lastServed && HasMorePages(page) {
			p.logger.Warn("Pagination offset did not advance, stopping",
				zap.Int("offset", offset),
				zap.Int64("served_offset", served),
			)
			out.Err = ErrPaginationStalled
			return out
		}
		lastServed = served
		offset += p.pageSize
	}

	out.Complete = true
	return out
}
