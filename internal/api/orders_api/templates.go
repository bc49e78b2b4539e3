package orders_api

import (
	"net/http"

	"github.com/BearBump/OrderBox/internal/models"
)

func (a *OrdersAPI) listTemplates(w http.ResponseWriter, r *http.Request) {
	out, err := a.orders.ListTemplates(r.Context(), companyFrom(r.Context()).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []*models.PackageTemplate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"package_templates": out})
}

func (a *OrdersAPI) getTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	out, err := a.orders.GetTemplate(r.Context(), companyFrom(r.Context()).ID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *OrdersAPI) createTemplate(w http.ResponseWriter, r *http.Request) {
	var t models.PackageTemplate
	if err := decodeBody(w, r, &t); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	out, err := a.orders.CreateTemplate(r.Context(), companyFrom(r.Context()).ID, t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *OrdersAPI) updateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	var t models.PackageTemplate
	if err := decodeBody(w, r, &t); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	out, err := a.orders.UpdateTemplate(r.Context(), companyFrom(r.Context()).ID, id, t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *OrdersAPI) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	if err := a.orders.DeleteTemplate(r.Context(), companyFrom(r.Context()).ID, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
