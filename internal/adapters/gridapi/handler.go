package gridapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"qctrack/internal/adapters/export"
	"qctrack/internal/blob"
	"qctrack/internal/core"
	"qctrack/internal/grid"
	"qctrack/pkg/domain"
)

// Handler provides HTTP access to the product catalog, lots, the reconciled
// result grid, and result source documents.
type Handler struct {
	Service   *core.Service
	Documents blob.Store
}

// NewHandler constructs the grid HTTP handler.
func NewHandler(svc *core.Service, docs blob.Store) *Handler {
	return &Handler{Service: svc, Documents: docs}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/products":
		h.handleProducts(w, r)
	case strings.HasPrefix(path, "/api/v1/products/"):
		h.handleProduct(w, r, strings.TrimPrefix(path, "/api/v1/products/"))
	case path == "/api/v1/lots":
		h.handleLots(w, r)
	case strings.HasPrefix(path, "/api/v1/lots/"):
		h.handleLot(w, r, strings.TrimPrefix(path, "/api/v1/lots/"))
	case strings.HasPrefix(path, "/api/v1/results/"):
		h.handleResult(w, r, strings.TrimPrefix(path, "/api/v1/results/"))
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"products": h.Service.ListProducts(r.Context())})
	case http.MethodPost:
		var req struct {
			SKU      string `json:"sku"`
			Name     string `json:"name"`
			Category string `json:"category"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid product payload")
			return
		}
		product, _, err := h.Service.CreateProduct(r.Context(), domain.Product{SKU: req.SKU, Name: req.Name, Category: req.Category})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleProduct(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	if len(segments) != 2 || segments[1] != "specifications" {
		http.NotFound(w, r)
		return
	}
	productID := segments[0]

	switch r.Method {
	case http.MethodGet:
		specs, err := h.Service.ListSpecificationsForProduct(r.Context(), productID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"specifications": specs})
	case http.MethodPost:
		var req struct {
			TestName      string `json:"test_name"`
			Category      string `json:"category"`
			Unit          string `json:"unit"`
			Specification string `json:"specification"`
			Required      bool   `json:"required"`
			DefaultMethod string `json:"default_method"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid specification payload")
			return
		}
		spec, _, err := h.Service.CreateTestSpecification(r.Context(), domain.TestSpecification{
			ProductID:     productID,
			TestName:      req.TestName,
			Category:      req.Category,
			Unit:          req.Unit,
			Specification: req.Specification,
			Required:      req.Required,
			DefaultMethod: req.DefaultMethod,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"specification": spec})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleLots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"lots": h.Service.ListLots(r.Context())})
	case http.MethodPost:
		var req struct {
			Number     string   `json:"number"`
			ProductIDs []string `json:"product_ids"`
			Notes      *string  `json:"notes"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid lot payload")
			return
		}
		lot, _, err := h.Service.CreateLot(r.Context(), domain.Lot{Number: req.Number, ProductIDs: req.ProductIDs, Notes: req.Notes})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"lot": lot})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleLot(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	lotID := segments[0]

	if len(segments) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		lot, err := h.Service.GetLot(r.Context(), lotID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"lot": lot})
		return
	}

	if len(segments) != 2 {
		http.NotFound(w, r)
		return
	}

	switch segments[1] {
	case "status":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleLotStatus(w, r, lotID)
	case "grid":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleLotGrid(w, r, lotID)
	case "results":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleLotResults(w, r, lotID)
	case "export":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleLotExport(w, r, lotID)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleLotStatus(w http.ResponseWriter, r *http.Request, lotID string) {
	var req struct {
		Status domain.LotStatus `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "invalid status payload")
		return
	}
	lot, _, err := h.Service.AdvanceLotStatus(r.Context(), lotID, req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lot": lot})
}

func (h *Handler) reconcileLot(r *http.Request, lotID string) (domain.Lot, []grid.Row, error) {
	lot, err := h.Service.GetLot(r.Context(), lotID)
	if err != nil {
		return domain.Lot{}, nil, err
	}
	specs, err := h.Service.ListSpecificationsForLot(r.Context(), lotID)
	if err != nil {
		return domain.Lot{}, nil, err
	}
	results, err := h.Service.ListResultsForLot(r.Context(), lotID)
	if err != nil {
		return domain.Lot{}, nil, err
	}
	return lot, grid.Reconcile(specs, results), nil
}

func (h *Handler) handleLotGrid(w http.ResponseWriter, r *http.Request, lotID string) {
	lot, rows, err := h.reconcileLot(r, lotID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lot":      lot,
		"editable": lot.Status.Editable(),
		"rows":     rows,
	})
}

// resultSubmission is one committed cell edit. A placeholder row id creates
// the result on first save; a persisted id updates in place.
type resultSubmission struct {
	RowID grid.RowID `json:"row_id"`
	Value *string    `json:"value"`
	Notes *string    `json:"notes"`
}

func (h *Handler) handleLotResults(w http.ResponseWriter, r *http.Request, lotID string) {
	var req resultSubmission
	if err := decodeBody(r, &req); err != nil || req.RowID.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid result payload")
		return
	}
	if req.Value == nil && req.Notes == nil {
		writeError(w, http.StatusBadRequest, "no fields to save")
		return
	}

	lot, rows, err := h.reconcileLot(r, lotID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !lot.Status.Editable() {
		writeError(w, http.StatusConflict, fmt.Sprintf("lot is %s; results are read-only", lot.Status))
		return
	}

	store := NewServiceResultStore(h.Service)

	if resultID, ok := req.RowID.ResultID(); ok {
		updated, err := store.UpdateResult(r.Context(), resultID, grid.PartialFields{Value: req.Value, Notes: req.Notes})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"row_id": grid.PersistedRowID(updated.ID),
			"result": updated,
		})
		return
	}

	var seed *grid.Row
	for i := range rows {
		if rows[i].ID == req.RowID {
			seed = &rows[i]
			break
		}
	}
	if seed == nil {
		writeError(w, http.StatusNotFound, "row not found")
		return
	}
	fields := grid.ResultFields{
		TestName:      seed.TestName,
		Unit:          seed.Unit,
		Method:        seed.Method,
		Specification: seed.Specification,
	}
	if req.Value != nil {
		fields.Value = *req.Value
	}
	if req.Notes != nil {
		fields.Notes = *req.Notes
	}
	created, err := store.CreateResult(r.Context(), lotID, fields)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"row_id":      grid.PersistedRowID(created.ID),
		"placeholder": req.RowID,
		"result":      created,
	})
}

func (h *Handler) handleLotExport(w http.ResponseWriter, r *http.Request, lotID string) {
	lot, rows, err := h.reconcileLot(r, lotID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	filename := fmt.Sprintf("lot-%s-%s.xlsx", lot.Number, time.Now().UTC().Format("20060102T150405Z"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.WriteGrid(w, lot, rows); err != nil {
		// Headers are already written; nothing sensible left to send.
		return
	}
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	if len(segments) != 2 || segments[1] != "document" {
		http.NotFound(w, r)
		return
	}
	if h.Documents == nil {
		writeError(w, http.StatusNotFound, "document storage not configured")
		return
	}
	resultID := segments[0]

	switch r.Method {
	case http.MethodPost:
		h.handleDocumentUpload(w, r, resultID)
	case http.MethodGet:
		h.handleDocumentDownload(w, r, resultID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleDocumentUpload(w http.ResponseWriter, r *http.Request, resultID string) {
	result, err := h.Service.GetTestResult(r.Context(), resultID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	if filename == "" || strings.ContainsAny(filename, "/\\") {
		writeError(w, http.StatusBadRequest, "filename query parameter required")
		return
	}

	key := blob.ResultDocumentKey(result.LotID, result.ID, filename)
	info, err := h.Documents.Put(r.Context(), key, r.Body, blob.PutOptions{
		ContentType: r.Header.Get("Content-Type"),
		Metadata:    map[string]string{"result_id": result.ID},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	updated, _, err := h.Service.AttachResultDocument(r.Context(), result.ID, key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"result": updated, "document": info})
}

func (h *Handler) handleDocumentDownload(w http.ResponseWriter, r *http.Request, resultID string) {
	result, err := h.Service.GetTestResult(r.Context(), resultID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if result.DocumentKey == nil {
		writeError(w, http.StatusNotFound, "result has no document")
		return
	}
	info, rc, err := h.Documents.Get(r.Context(), *result.DocumentKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer func() { _ = rc.Close() }()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", lastSegment(info.Key)))
	_, _ = io.Copy(w, rc)
}

func lastSegment(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeServiceError(w http.ResponseWriter, err error) {
	var notFound core.ErrNotFound
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, notFound.Error())
		return
	}
	var blocked domain.RuleViolationError
	if errors.As(err, &blocked) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      blocked.Error(),
			"violations": blocked.Result.Violations,
		})
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
