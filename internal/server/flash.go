package server

import (
	"net/http"

	"github.com/addiskers/webp/internal/model"
)

// sessionName is the cookie holding flash messages.
const sessionName = "webp-session"

// addFlash queues a message for the next render of the upload form.
func (s *Server) addFlash(w http.ResponseWriter, r *http.Request, category model.FlashCategory, message string) error {
	// A cookie signed with an old key fails to decode; Get still returns
	// a usable fresh session in that case.
	sess, err := s.store.Get(r, sessionName)
	if err != nil {
		s.log.WithError(err).Debug("discarding unreadable session")
	}
	sess.AddFlash(model.Flash{Category: category, Message: message})
	return sess.Save(r, w)
}

// popFlashes returns and clears every queued message. Entries that are not
// a model.Flash, or whose category the form cannot style, are dropped.
func (s *Server) popFlashes(w http.ResponseWriter, r *http.Request) []model.Flash {
	sess, err := s.store.Get(r, sessionName)
	if err != nil {
		s.log.WithError(err).Debug("discarding unreadable session")
	}

	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}

	flashes := make([]model.Flash, 0, len(raw))
	for _, v := range raw {
		f, ok := v.(model.Flash)
		if !ok {
			continue
		}
		category, err := model.ParseFlashCategory(f.Category.String())
		if err != nil {
			s.log.WithError(err).Debug("dropping flash")
			continue
		}
		f.Category = category
		flashes = append(flashes, f)
	}

	if err := sess.Save(r, w); err != nil {
		s.log.WithError(err).Warn("clear flashes")
	}
	return flashes
}

// flashAndRedirect queues a message and sends the browser back to the form.
func (s *Server) flashAndRedirect(w http.ResponseWriter, r *http.Request, category model.FlashCategory, message string) {
	if err := s.addFlash(w, r, category, message); err != nil {
		s.log.WithError(err).Warn("save flash")
	}
	http.Redirect(w, r, "/", http.StatusFound)
}
