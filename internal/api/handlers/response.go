package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/harborleaf/storelocator/internal/domain/entities"
	apperrors "github.com/harborleaf/storelocator/pkg/errors"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// respondWithAppError maps an error to a status code. Internal details of
// unexpected errors are logged, not returned.
func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch appErr.Type {
	case apperrors.ErrorTypeValidation:
		respondWithError(w, http.StatusBadRequest, appErr.Message)
	case apperrors.ErrorTypeNotFound:
		respondWithError(w, http.StatusNotFound, appErr.Message)
	case apperrors.ErrorTypeUnavailable:
		respondWithError(w, http.StatusServiceUnavailable, appErr.Message)
	case apperrors.ErrorTypeExternal:
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("upstream failure")
		respondWithError(w, http.StatusBadGateway, appErr.Message)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// parseFilters reads discovery filters from query parameters. Unset
// parameters stay at their zero value.
func parseFilters(r *http.Request) (entities.SearchFilters, error) {
	query := r.URL.Query()
	filters := entities.SearchFilters{
		SearchText: query.Get("q"),
		City:       query.Get("city"),
		District:   query.Get("district"),
		Status:     query.Get("status"),
		SortBy:     entities.SortOrder(query.Get("sort")),
	}

	for _, raw := range query["features"] {
		for _, feat := range strings.Split(raw, ",") {
			if feat = strings.TrimSpace(feat); feat != "" {
				filters.Features = append(filters.Features, feat)
			}
		}
	}

	var err error
	if filters.RadiusKm, err = parseFloatParam(query.Get("radius"), "radius"); err != nil {
		return filters, err
	}
	if filters.Page, err = parseIntParam(query.Get("page"), "page"); err != nil {
		return filters, err
	}
	if filters.PageSize, err = parseIntParam(query.Get("page_size"), "page_size"); err != nil {
		return filters, err
	}
	return filters, nil
}

// parseCoordinate reads lat and lng. Both absent returns nil; one without
// the other is an error.
func parseCoordinate(r *http.Request) (*entities.Coordinate, error) {
	query := r.URL.Query()
	latStr := strings.TrimSpace(query.Get("lat"))
	lngStr := strings.TrimSpace(query.Get("lng"))
	if latStr == "" && lngStr == "" {
		return nil, nil
	}
	if latStr == "" || lngStr == "" {
		return nil, apperrors.NewValidationError("lat and lng must be given together")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid lat parameter")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid lng parameter")
	}

	coord := entities.Coordinate{Lat: lat, Lng: lng}
	if !coord.Valid() {
		return nil, apperrors.NewValidationError("coordinate out of range")
	}
	return &coord, nil
}

func parseFloatParam(raw, name string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperrors.NewValidationError("invalid " + name + " parameter")
	}
	return v, nil
}

func parseIntParam(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError("invalid " + name + " parameter")
	}
	return v, nil
}

func parsePathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("store ID must be a positive integer")
	}
	return id, nil
}

// clientIP returns the first X-Forwarded-For hop, or the remote address
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
