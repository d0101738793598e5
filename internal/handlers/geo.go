package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/beaconhq/beacon/internal/services/geo"
)

// Geocoder is the slice of the geo client the handler needs.
type Geocoder interface {
	Search(ctx context.Context, query string) (*geo.Place, error)
	Reverse(ctx context.Context, lat, lon float64) (*geo.Place, error)
}

type GeoHandler struct {
	geocoder Geocoder
}

func NewGeoHandler(geocoder Geocoder) *GeoHandler {
	return &GeoHandler{geocoder: geocoder}
}

type GeocodeResponse struct {
	Place *geo.Place `json:"place"`
}

func (h *GeoHandler) Search(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}

	place, err := h.geocoder.Search(r.Context(), query)
	if errors.Is(err, geo.ErrNoResults) {
		writeError(w, http.StatusNotFound, "No results found")
		return
	}
	if err != nil {
		log.Printf("Error geocoding %q: %v", query, err)
		writeError(w, http.StatusBadGateway, "Geocoding service unavailable")
		return
	}

	writeJSON(w, http.StatusOK, GeocodeResponse{Place: place})
}

func (h *GeoHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		writeError(w, http.StatusBadRequest, "Coordinates out of range")
		return
	}

	place, err := h.geocoder.Reverse(r.Context(), lat, lon)
	if errors.Is(err, geo.ErrNoResults) {
		writeError(w, http.StatusNotFound, "No results found")
		return
	}
	if err != nil {
		log.Printf("Error reverse geocoding: %v", err)
		writeError(w, http.StatusBadGateway, "Geocoding service unavailable")
		return
	}

	writeJSON(w, http.StatusOK, GeocodeResponse{Place: place})
}
