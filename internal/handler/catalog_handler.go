package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/unclebandit/storecast-backend/internal/model"
	"github.com/unclebandit/storecast-backend/internal/response"
	"github.com/unclebandit/storecast-backend/internal/service"
	"github.com/unclebandit/storecast-backend/internal/validation"
)

// CatalogHandler serves the store, template, media and media URL screens of the dashboard.
type CatalogHandler struct {
	Service  *service.CatalogService
	Validate *validator.Validate
	Logger   *zap.Logger
}

func NewCatalogHandler(svc *service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		Service:  svc,
		Validate: validation.New(),
		Logger:   logger,
	}
}

// Routes mounts every catalog endpoint under r.
func (h *CatalogHandler) Routes(r chi.Router) {
	r.Route("/stores", func(r chi.Router) {
		r.Get("/", h.ListStores)
		r.Post("/", h.CreateStore)
		r.Get("/{id}", h.GetStore)
		r.Put("/{id}", h.UpdateStore)
		r.Delete("/{id}", h.DeleteStore)
	})
	r.Route("/templates", func(r chi.Router) {
		r.Get("/", h.ListTemplates)
		r.Post("/", h.CreateTemplate)
		r.Get("/{id}", h.GetTemplate)
		r.Put("/{id}", h.UpdateTemplate)
		r.Delete("/{id}", h.DeleteTemplate)
	})
	r.Route("/media", func(r chi.Router) {
		r.Get("/", h.ListMedia)
		r.Post("/", h.CreateMedia)
		r.Delete("/{id}", h.DeleteMedia)
	})
	r.Route("/store-media-urls", func(r chi.Router) {
		r.Get("/", h.ListMediaURLs)
		r.Post("/", h.UpsertMediaURL)
		r.Delete("/{id}", h.DeleteMediaURL)
	})
}

func (h *CatalogHandler) decode(w http.ResponseWriter, r *http.Request, dst any, validate bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	if !validate {
		return true
	}
	if err := h.Validate.StructCtx(r.Context(), dst); err != nil {
		response.FromError(w, h.Logger, validation.ToAppError(err))
		return false
	}
	return true
}

func (h *CatalogHandler) ListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.Service.ListStores(r.Context())
	if err != nil {
		response.FromError(w, h.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, stores)
}

func (h *CatalogHandler) GetStore(w http.ResponseWriter, r *http.Request) {
	store, err := h.Service.GetStore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, h.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, store)
}

func (h *CatalogHandler) CreateStore(w http.ResponseWriter, r *http.Request) {
	var payload service.CreateStoreRequest
	if !h.decode(w, r, &payload, true) {
		return
	}
	store, err := h.Service.CreateStore(r.Context(), payload)
	if err != nil {
		response.FromError(w, h.Logger, err)
		return
	}
	response.JSON(w, http.StatusCreated, store)
}

func (h *CatalogHandler) UpdateStore(w http.ResponseWriter, r *http.Request) {
	var payload model.StoreUpdate
	if !h.decode(w, r, &payload, false) {
		return
	}
	store, err := h.Service.UpdateStore(r.Context(), chi.URLParam(r, "id"), payload)
	if err != nil {
		response.FromError(w, h.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, store)
}

func (h *CatalogHandler) DeleteStore(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteStore(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.FromError(w, h.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *CatalogHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Service.ListTemplates(r.Context())
	if err != nil {
		response.FromError(w, h.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, templates)
}

func (h *CatalogHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.Service.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, h.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, tpl)
}

func (h *CatalogHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var payload service.CreateTemplateRequest
	if !h.decode(w, r, &payload, true) {
		return
	}
	tpl, err := h.Service.CreateTemplate(r.Context(), payload)
	if err != nil {
		response.FromError(w, h.Logger, err)
		return
	}
	response.JSON(w, http.StatusCreated, tpl)
}

func (h *CatalogHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var payload model.TemplateUpdate
	if !h.decode(w, r, &payload, false) {
		return
	}
	tpl, err := h.Service.UpdateTemplate(r.Context(), chi.URLParam(r, "id"), payload)
	if err != nil {
		response.FromError(w, h.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, tpl)
}

func (h *CatalogHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.FromError(w, h.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *CatalogHandler) ListMedia(w http.ResponseWriter, r *http.Request) {
	media, err := h.Service.ListMedia(r.Context())
	if err != nil {
		response.FromError(w, h.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, media)
}

func (h *CatalogHandler) CreateMedia(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name" validate:"required"`
	}
	if !h.decode(w, r, &payload, true) {
		return
	}
	media, err := h.Service.CreateMedia(r.Context(), payload.Name)
	if err != nil {
		response.FromError(w, h.Logger, err)
		return
	}
	response.JSON(w, http.StatusCreated, media)
}

func (h *CatalogHandler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteMedia(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.FromError(w, h.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ListMediaURLs accepts an optional store_id query filter.
func (h *CatalogHandler) ListMediaURLs(w http.ResponseWriter, r *http.Request) {
	urls, err := h.Service.ListMediaURLs(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		response.FromError(w, h.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, urls)
}

func (h *CatalogHandler) UpsertMediaURL(w http.ResponseWriter, r *http.Request) {
	var payload service.UpsertMediaURLRequest
	if !h.decode(w, r, &payload, true) {
		return
	}
	binding, err := h.Service.UpsertMediaURL(r.Context(), payload)
	if err != nil {
		response.FromError(w, h.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, binding)
}

func (h *CatalogHandler) DeleteMediaURL(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteMediaURL(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.FromError(w, h.Logger, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"success": true})
}
