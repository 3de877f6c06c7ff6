package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/harborleaf/storelocator/internal/domain/providers"
	apperrors "github.com/harborleaf/storelocator/pkg/errors"
)

// surfaceView is the JSON form of a rendered surface
type surfaceView struct {
	Backend     string             `json:"backend"`
	ContentType string             `json:"content_type"`
	Viewport    providers.Viewport `json:"viewport"`
	Markers     []providers.Marker `json:"markers"`
}

// writeSurface writes the surface content, or its layout as JSON when the
// request asks for format=json.
func writeSurface(w http.ResponseWriter, r *http.Request, surface *providers.Surface) {
	if r.URL.Query().Get("format") == "json" {
		markers := surface.Markers
		if markers == nil {
			markers = []providers.Marker{}
		}
		respondWithJSON(w, http.StatusOK, surfaceView{
			Backend:     surface.Backend,
			ContentType: surface.ContentType,
			Viewport:    surface.Viewport,
			Markers:     markers,
		})
		return
	}

	w.Header().Set("Content-Type", surface.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Map-Backend", surface.Backend)
	w.Header().Set("X-Map-Markers", strconv.Itoa(len(surface.Markers)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(surface.Content); err != nil {
		log.Warn().Err(err).Msg("failed to write map surface")
	}
}

func mapRenderError(renderer providers.MapRenderer, err error) error {
	if errors.Is(err, providers.ErrMapUnavailable) {
		message := fmt.Sprintf("map backend %s is unavailable", renderer.Name())
		if recoverable, ok := renderer.(providers.RecoverableRenderer); ok {
			status := recoverable.Status()
			message = fmt.Sprintf("map backend %s is %s", status.Backend, status.State)
		}
		return apperrors.NewUnavailableError(message, err)
	}
	return apperrors.NewExternalError("failed to render map", err)
}
