package blob

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// maxUploadBytes caps a single media upload.
const maxUploadBytes = 10 << 20

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Upload accepts a multipart "file" field and responds with the stored URL.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	url, err := h.store.Save(header.Filename, file)
	if err != nil {
		logrus.WithError(err).Error("upload failed")
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"url": url})
}
