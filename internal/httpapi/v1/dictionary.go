package v1

import (
	"net/http"

	"github.com/tinoosan/tripsettle/internal/dictionary"
)

// GET /v1/dictionary/categories
func (s *Server) getCategories(w http.ResponseWriter, r *http.Request) {
	toJSON(w, http.StatusOK, struct {
		Items []dictionary.CategoryDef `json:"items"`
	}{Items: dictionary.Categories()})
}

// GET /v1/dictionary/split-types
func (s *Server) getSplitTypes(w http.ResponseWriter, r *http.Request) {
	toJSON(w, http.StatusOK, struct {
		Items []dictionary.SplitTypeDef `json:"items"`
	}{Items: dictionary.SplitTypes()})
}
