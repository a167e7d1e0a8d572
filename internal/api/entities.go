package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vmgrid/vmgrid-core/internal/entity"
	"github.com/vmgrid/vmgrid-core/internal/mirror"
)

// handleListDomains returns all mirrored domains.
func (s *Server) handleListDomains(w http.ResponseWriter, _ *http.Request) {
	domains := s.view.ListAll(mirror.Filter{Kind: entity.KindDomain})
	writeJSON(w, http.StatusOK, map[string]any{"domains": domains, "count": len(domains)})
}

// handleGetDomain returns a single domain by its numeric id.
func (s *Server) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	qid, err := strconv.Atoi(chi.URLParam(r, "qid"))
	if err != nil {
		writeBadRequest(w, "qid must be numeric")
		return
	}

	dom, err := s.view.Get(entity.DomainIdentity(qid))
	if err != nil {
		if errors.Is(err, mirror.ErrNotFound) {
			writeNotFound(w, "domain not found")
			return
		}
		writeInternalError(w, "failed to get domain")
		return
	}

	writeJSON(w, http.StatusOK, dom)
}

// handleListDomainDevices returns the devices exported by one backend
// domain, across all device classes.
func (s *Server) handleListDomainDevices(w http.ResponseWriter, r *http.Request) {
	qid, err := strconv.Atoi(chi.URLParam(r, "qid"))
	if err != nil {
		writeBadRequest(w, "qid must be numeric")
		return
	}

	if _, err := s.view.Get(entity.DomainIdentity(qid)); err != nil {
		if errors.Is(err, mirror.ErrNotFound) {
			writeNotFound(w, "domain not found")
			return
		}
		writeInternalError(w, "failed to get domain")
		return
	}

	devices := make([]*entity.Entity, 0)
	for _, dev := range s.view.ListAll(mirror.Filter{Kind: entity.KindDevice}) {
		if dev.Identity.BelongsToDomain(qid) {
			devices = append(devices, dev)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleListDevices returns all mirrored devices, with optional query filters.
//
// Query parameters:
//   - class: filter by device class (block, pci, usb)
//   - backend: filter by backend domain qid (requires class)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	filter := mirror.Filter{Kind: entity.KindDevice}

	if class := r.URL.Query().Get("class"); class != "" {
		if backendStr := r.URL.Query().Get("backend"); backendStr != "" {
			backend, err := strconv.Atoi(backendStr)
			if err != nil {
				writeBadRequest(w, "backend must be numeric")
				return
			}
			filter.Prefix = entity.DeviceScope(backend, entity.DeviceClass(class))
		} else {
			filter.Prefix = entity.Identity("devices/" + class + "/")
		}
	} else if r.URL.Query().Get("backend") != "" {
		writeBadRequest(w, "backend filter requires class")
		return
	}

	devices := s.view.ListAll(filter)
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by class, backend qid, and ident.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	backend, err := strconv.Atoi(chi.URLParam(r, "backend"))
	if err != nil {
		writeBadRequest(w, "backend must be numeric")
		return
	}
	class := entity.DeviceClass(chi.URLParam(r, "class"))
	ident := chi.URLParam(r, "ident")

	dev, err := s.view.Get(entity.DeviceIdentity(backend, class, ident))
	if err != nil {
		if errors.Is(err, mirror.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleListLabels returns all mirrored labels.
func (s *Server) handleListLabels(w http.ResponseWriter, _ *http.Request) {
	labels := s.view.ListAll(mirror.Filter{Kind: entity.KindLabel})
	writeJSON(w, http.StatusOK, map[string]any{"labels": labels, "count": len(labels)})
}

// handleGetLabel returns a single label by name.
func (s *Server) handleGetLabel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	label, err := s.view.Get(entity.LabelIdentity(name))
	if err != nil {
		if errors.Is(err, mirror.ErrNotFound) {
			writeNotFound(w, "label not found")
			return
		}
		writeInternalError(w, "failed to get label")
		return
	}

	writeJSON(w, http.StatusOK, label)
}
