package lib

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Genosoo/expoasia-web-app"
	"github.com/Genosoo/expoasia-web-app/internal"
	"github.com/Genosoo/expoasia-web-app/lib/localization"
	"github.com/Genosoo/expoasia-web-app/lib/registration"
	"github.com/Genosoo/expoasia-web-app/lib/store"
)

// keepCredential caches a finished session's credential so it can be
// downloaded for CredentialRetention, by this or any other instance.
func (s *Server) keepCredential(r *http.Request, sess *registration.Session, lg *slog.Logger) {
	snap := sess.Snapshot()
	if snap.State != registration.StateComplete || snap.Credential == nil {
		return
	}

	ctx, cancel := s.operationContext(r)
	defer cancel()

	if err := s.credentials.Set(ctx, snap.ID, *snap.Credential, s.policy.CredentialRetention); err != nil {
		lg.Error("can't cache credential", "err", err)
	}
}

// credential serves the QR code of a finished registration. The key is the
// session id, never the backend's participant id.
func (s *Server) credential(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)
	localizer := localization.GetLocalizer(r)

	id := r.PathValue("id")

	ctx, cancel := s.operationContext(r)
	defer cancel()

	cred, err := s.credentials.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		credentialDownloads.WithLabelValues("gone").Inc()
		s.respondWithStatus(w, r, localizer.T("credential_gone"), http.StatusNotFound)
		return
	case err != nil:
		credentialDownloads.WithLabelValues("store_error").Inc()
		lg.Error("can't read cached credential", "err", err)
		s.respondWithError(w, r, localizer.T("credential_gone"))
		return
	}

	img, err := s.backend.FetchImage(ctx, cred.ImageURL)
	if err != nil {
		credentialDownloads.WithLabelValues("fetch_error").Inc()
		lg.Warn("can't fetch credential image", "credential", cred.ID, "err", err)
		s.respondWithStatus(w, r, localizer.T("error_backend_unreachable"), http.StatusBadGateway)
		return
	}

	credentialDownloads.WithLabelValues("ok").Inc()

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("ETag", `"`+internal.SHA256sum(string(img.Data))+`"`)
	if r.URL.Query().Get("inline") == "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+expoasia.CredentialFilename+`"`)
	}

	http.ServeContent(w, r, expoasia.CredentialFilename, time.Time{}, bytes.NewReader(img.Data))
}
