package server

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/addiskers/webp/internal/convert"
	"github.com/addiskers/webp/internal/model"
)

// Messages flashed back to the upload form.
const (
	msgNoFiles         = "Please choose at least one JPG/JPEG image."
	msgNothingWorked   = "Unable to convert the uploads."
	msgRequestTooLarge = "The upload is larger than the server accepts."
)

// indexData is the template context for index.html.
type indexData struct {
	Flashes     []model.Flash
	Quality     int
	MaxUploadMB int64
}

// handleIndex renders the upload form with any pending flash messages.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	flashes := s.popFlashes(w, r)

	var buf bytes.Buffer
	err := s.tmpl.ExecuteTemplate(&buf, "index.html", indexData{
		Flashes:     flashes,
		Quality:     s.cfg.Quality,
		MaxUploadMB: s.cfg.MaxContentLength / (1024 * 1024),
	})
	if err != nil {
		s.log.WithError(err).Error("render index")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handleConvert converts the uploaded "images" files and returns a ZIP
// attachment.
//
// Outcomes:
//   - no files selected: flash error, redirect to the form
//   - nothing converted: flash the failure list, redirect to the form
//   - partial success: flash a warning (shown on the next form visit) and
//     return the ZIP
//   - full success: return the ZIP
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.cfg.MaxContentLength {
		s.log.WithField("length", r.ContentLength).Warn("upload rejected: request too large")
		http.Error(w, msgRequestTooLarge, http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxContentLength)

	uploads, err := s.readUploads(r)
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.log.WithField("limit", tooLarge.Limit).Warn("upload rejected: request too large")
			http.Error(w, msgRequestTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		s.log.WithError(err).Warn("upload rejected: malformed form")
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	uploads = convert.FilterEmpty(uploads)
	if len(uploads) == 0 {
		s.flashAndRedirect(w, r, model.FlashError, msgNoFiles)
		return
	}

	res, err := convert.ConvertBatch(r.Context(), uploads, s.convertOptions())
	if err != nil {
		s.log.WithError(err).Error("conversion aborted")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	log := s.log.WithFields(logrus.Fields{
		"files":     len(uploads),
		"converted": len(res.Successes),
		"skipped":   len(res.Failures),
	})

	if len(res.Successes) == 0 {
		log.Info("conversion produced no files")
		text := msgNothingWorked
		if len(res.Failures) > 0 {
			text = strings.Join(res.Failures, "\n")
		}
		s.flashAndRedirect(w, r, model.FlashError, text)
		return
	}

	if len(res.Failures) > 0 {
		// The browser stays on the form page while downloading, so the
		// warning shows up on its next visit.
		if err := s.addFlash(w, r, model.FlashWarning, res.PartialMessage()); err != nil {
			s.log.WithError(err).Warn("save flash")
		}
	}

	name := convert.ArchiveName(s.now())
	log.WithField("archive", name).Info("conversion complete")

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(res.Archive.Len()))
	_, _ = res.Archive.WriteTo(w)
}

// readUploads parses the multipart body and returns the "images" parts.
// A request that is not multipart at all is treated as an empty selection.
func (s *Server) readUploads(r *http.Request) ([]convert.Upload, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}

	headers := r.MultipartForm.File["images"]
	uploads := make([]convert.Upload, 0, len(headers))
	for _, fh := range headers {
		uploads = append(uploads, fileHeaderUpload(fh))
	}
	return uploads, nil
}

// fileHeaderUpload adapts a multipart file header to convert.Upload.
func fileHeaderUpload(fh *multipart.FileHeader) convert.Upload {
	return convert.Upload{
		Name: fh.Filename,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// handleHealth is the liveness probe for the container runtime.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}
