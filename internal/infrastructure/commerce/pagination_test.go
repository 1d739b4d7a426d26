package commerce

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/erp/agreementclone/internal/domain/agreement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasMorePages(t *testing.T) {
	meta := func(offset, limit, total int) agreement.Record {
		rec, err := agreement.DecodeRecord([]byte(fmt.Sprintf(
			`{"$meta":{"pagination":{"offset":%d,"limit":%d,"total":%d}}}`, offset, limit, total)))
		require.NoError(t, err)
		return rec
	}

	assert.True(t, HasMorePages(nil))
	assert.True(t, HasMorePages(meta(0, 1000, 1001)))
	assert.False(t, HasMorePages(meta(1000, 1000, 1001)))
	assert.False(t, HasMorePages(meta(0, 1000, 1000)))
	assert.False(t, HasMorePages(meta(0, 0, 0)))
	assert.False(t, HasMorePages(agreement.Record{}))
}

// pagedServer serves total items in pages, honouring offset and limit.
func pagedServer(t *testing.T, total int, failAtOffset int) (*httptest.Server, *[]string) {
	t.Helper()
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if offset == failAtOffset {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var items []string
		for i := offset; i < offset+limit && i < total; i++ {
			items = append(items, fmt.Sprintf(`{"id":"SUB-%d"}`, i))
		}
		fmt.Fprintf(w, `{"$meta":{"pagination":{"offset":%d,"limit":%d,"total":%d}},"data":[%s]}`,
			offset, limit, total, joinItems(items))
	}))
	return server, &requests
}

func joinItems(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ","
		}
		out += item
	}
	return out
}

func TestPaginatorAll(t *testing.T) {
	t.Run("walks every page", func(t *testing.T) {
		server, requests := pagedServer(t, 5, -1)
		defer server.Close()

		c, _ := newTestClient(t, server.URL)
		col := NewPaginator(c).WithPageSize(2).All(context.Background(), NewQuery("/subs").Where(Eq("status", "active")))

		assert.True(t, col.Complete)
		assert.NoError(t, col.Err)
		assert.Equal(t, 3, col.Pages)
		require.Len(t, col.Items, 5)
		assert.Equal(t, "SUB-4", col.Items[4].ID())
		assert.Equal(t, []string{
			"eq(status,active)&offset=0&limit=2",
			"eq(status,active)&offset=2&limit=2",
			"eq(status,active)&offset=4&limit=2",
		}, *requests)
	})

	t.Run("empty collection takes one call", func(t *testing.T) {
		server, requests := pagedServer(t, 0, -1)
		defer server.Close()

		c, _ := newTestClient(t, server.URL)
		col := NewPaginator(c).All(context.Background(), NewQuery("/subs"))
		assert.True(t, col.Complete)
		assert.Empty(t, col.Items)
		assert.Len(t, *requests, 1)
		assert.Equal(t, "offset=0&limit=1000", (*requests)[0])
	})

	t.Run("failed page returns partial result", func(t *testing.T) {
		server, _ := pagedServer(t, 5, 2)
		defer server.Close()

		c, _ := newTestClient(t, server.URL)
		col := NewPaginator(c).WithPageSize(2).All(context.Background(), NewQuery("/subs"))
		assert.False(t, col.Complete)
		assert.ErrorIs(t, col.Err, ErrRequestFailed)
		assert.Len(t, col.Items, 2)
	})

	t.Run("stalled pagination stops", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"$meta":{"pagination":{"offset":0,"limit":10,"total":50}},"data":[]}`))
		}))
		defer server.Close()

		c, _ := newTestClient(t, server.URL)
		col := NewPaginator(c).All(context.Background(), NewQuery("/subs"))
		assert.False(t, col.Complete)
		assert.ErrorIs(t, col.Err, ErrPaginationStalled)
		assert.Equal(t, 2, col.Pages)
	})

	t.Run("empty pages are skipped", func(t *testing.T) {
		var offsets []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			offset := r.URL.Query().Get("offset")
			offsets = append(offsets, offset)
			data := ""
			if offset == "2" {
				data = `{"id":"SUB-3"}`
			}
			fmt.Fprintf(w, `{"$meta":{"pagination":{"offset":%s,"limit":2,"total":4}},"data":[%s]}`, offset, data)
		}))
		defer server.Close()

		c, _ := newTestClient(t, server.URL)
		col := NewPaginator(c).WithPageSize(2).All(context.Background(), NewQuery("/subs"))

		assert.True(t, col.Complete)
		assert.NoError(t, col.Err)
		assert.Equal(t, []string{"0", "2"}, offsets)
		require.Len(t, col.Items, 1)
		assert.Equal(t, "SUB-3", col.Items[0].ID())
	})
}
