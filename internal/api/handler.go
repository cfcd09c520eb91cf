// Package api exposes the read-only HTTP surface over stored records:
// search with filters and pagination, single-record lookup, and a
// health probe.
package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tdnguyen/mailsift/internal/store"
)

// RecordHandler serves record queries from the store.
type RecordHandler struct {
	store store.RecordStore
}

// NewRecordHandler creates a handler over the given store.
func NewRecordHandler(st store.RecordStore) *RecordHandler {
	return &RecordHandler{store: st}
}

// ErrorResponse is the JSON shape of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RecordResponse is one record in an API reply.
type RecordResponse struct {
	ID         string `json:"id"`
	AccountID  string `json:"account_id"`
	Folder     string `json:"folder"`
	UID        uint32 `json:"uid"`
	Subject    string `json:"subject"`
	Sender     string `json:"sender"`
	Body       string `json:"body,omitempty"`
	ReceivedAt string `json:"received_at"`
	Label      string `json:"label,omitempty"`
}

// SearchResponse is the paginated search reply.
type SearchResponse struct {
	Records []RecordResponse `json:"records"`
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	HasMore bool             `json:"has_more"`
}

// Search handles GET /api/v1/records/search. Supported query
// parameters: q (substring over subject, sender, and body), account,
// folder, page, size.
func (h *RecordHandler) Search(c *fiber.Ctx) error {
	query := store.Query{
		Text:      c.Query("q"),
		AccountID: c.Query("account"),
		Folder:    c.Query("folder"),
		Page:      c.QueryInt("page", 1),
		PageSize:  c.QueryInt("size", 0),
	}

	page, err := h.store.Search(c.Context(), query)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "search failed",
		})
	}

	resp := SearchResponse{
		Records: make([]RecordResponse, len(page.Records)),
		Total:   page.Total,
		Page:    query.Page,
		HasMore: page.HasMore,
	}
	for i, rec := range page.Records {
		resp.Records[i] = RecordResponse{
			ID:         rec.ID,
			AccountID:  rec.AccountID,
			Folder:     rec.Folder,
			UID:        rec.UID,
			Subject:    rec.Subject,
			Sender:     rec.Sender,
			ReceivedAt: rec.ReceivedAt.Format(time.RFC3339),
			Label:      string(rec.Label),
		}
	}
	return c.JSON(resp)
}

// Get handles GET /api/v1/records/:id, where :id is the
// folder-slash-UID record identifier, URL encoded.
func (h *RecordHandler) Get(c *fiber.Ctx) error {
	id, err := decodeRecordID(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "invalid record id",
		})
	}

	rec, err := h.store.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Error: "record not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "lookup failed",
		})
	}

	return c.JSON(RecordResponse{
		ID:         rec.ID,
		AccountID:  rec.AccountID,
		Folder:     rec.Folder,
		UID:        rec.UID,
		Subject:    rec.Subject,
		Sender:     rec.Sender,
		Body:       rec.Body,
		ReceivedAt: rec.ReceivedAt.Format(time.RFC3339),
		Label:      string(rec.Label),
	})
}
