package httpserver

import (
	"net/http"

	"github.com/and161185/typegpt/internal/model"
)

type generateImageRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio"`
}

func (s *Server) generateImage(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromCtx(r.Context())
	var req generateImageRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	img, err := s.d.Images.Generate(r.Context(), p, req.Prompt, req.AspectRatio)
	if err != nil {
		s.logFailure("generate image", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]*model.Image{"image": img})
}

func (s *Server) listImages(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromCtx(r.Context())
	imgs, err := s.d.Images.List(r.Context(), p)
	if err != nil {
		s.logFailure("list images", err)
		writeError(w, err)
		return
	}
	if imgs == nil {
		imgs = []model.Image{}
	}
	writeJSON(w, http.StatusOK, map[string][]model.Image{"images": imgs})
}
