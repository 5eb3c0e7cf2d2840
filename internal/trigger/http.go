package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/BRO3886/productsync/internal/search"
	"github.com/BRO3886/productsync/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxProductBody = 1 << 20

var requiredProductFields = []string{"productName", "productDescription", "currency", "userId", "productPrice"}

func HelloWorld(log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Info().Msg("Hello logs!")
		_, _ = io.WriteString(w, "Hello from Firebase!")
	}
}

// IndexProduct accepts a product as JSON and synchronizes it like a newly
// created document of the given collection.
func IndexProduct(router Router, path types.PathTemplate, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}

		product, ok := decodeProduct(w, r, "No product data provided")
		if !ok {
			return
		}
		for _, field := range requiredProductFields {
			if _, ok := product[field]; !ok {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": field + " is required"})
				return
			}
		}

		id, err := productID(product[types.IDField])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if id == "" {
			id = uuid.NewString()
		}

		n := types.ChangeNotification{Kind: types.KindCreated, Document: documentFor(path, id), ID: id, Data: normalizeNumbers(product)}

		log.Info().Str("id", id).Msg("received product")
		if err := router.Route(r.Context(), n); err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{"id": id, "error": fmt.Sprintf("Error adding product: %v", err)})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "message": "Product added and indexed successfully"})
	}
}

// UpdateProduct merges the given fields into an indexed product. The
// identifier comes from the "id" query parameter or the body.
func UpdateProduct(router Router, path types.PathTemplate, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut && r.Method != http.MethodPatch {
			methodNotAllowed(w, http.MethodPut+", "+http.MethodPatch)
			return
		}

		fields, ok := decodeProduct(w, r, "No update data provided")
		if !ok {
			return
		}
		bodyID, err := productID(fields[types.IDField])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		id := r.URL.Query().Get("id")
		switch {
		case id == "" && bodyID == "":
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "id is required"})
			return
		case id == "":
			id = bodyID
		case bodyID != "" && bodyID != id:
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "id in body does not match id parameter"})
			return
		}
		delete(fields, types.IDField)
		if len(fields) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No update data provided"})
			return
		}

		n := types.ChangeNotification{
			Kind:     types.KindUpdated,
			Document: documentFor(path, id),
			ID:       id,
			Partial:  true,
			Data:     normalizeNumbers(fields),
		}

		log.Info().Str("id", id).Int("fields", len(fields)).Msg("received product update")
		if err := router.Route(r.Context(), n); err != nil {
			if search.IsNotFound(err) {
				writeJSON(w, http.StatusNotFound, map[string]any{"id": id, "error": "Product not found"})
				return
			}
			writeJSON(w, http.StatusBadGateway, map[string]any{"id": id, "error": fmt.Sprintf("Error updating product: %v", err)})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "message": "Product updated and indexed successfully"})
	}
}

// decodeProduct writes a 400 and returns false when the body is not a
// non-empty JSON object.
func decodeProduct(w http.ResponseWriter, r *http.Request, emptyMsg string) (map[string]any, bool) {
	var product map[string]any
	dec := json.NewDecoder(io.LimitReader(r.Body, maxProductBody))
	dec.UseNumber()
	if err := dec.Decode(&product); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid product data: %v", err)})
		return nil, false
	}
	if len(product) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": emptyMsg})
		return nil, false
	}
	return product, true
}

// productID accepts string and numeric identifiers.
func productID(v any) (string, error) {
	switch id := v.(type) {
	case nil:
		return "", nil
	case string:
		return id, nil
	case json.Number:
		return id.String(), nil
	}
	return "", fmt.Errorf("id must be a string or a number, got %T", v)
}

// documentFor builds the document path for id. Templates with more than one
// parameter cannot be built from the id alone and yield "".
func documentFor(path types.PathTemplate, id string) string {
	doc, err := path.Expand(map[string]string{path.IDParam(): id})
	if err != nil {
		return ""
	}
	return doc
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
}

// normalizeNumbers turns json.Number values into int64 or float64.
func normalizeNumbers(v map[string]any) map[string]any {
	for k, item := range v {
		v[k] = normalizeValue(item)
	}
	return v
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		return normalizeNumbers(x)
	case []any:
		for i := range x {
			x[i] = normalizeValue(x[i])
		}
		return x
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
