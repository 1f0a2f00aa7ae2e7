package delivery

import (
	"github.com/go-chi/chi/v5"
	"github.com/vonote/vonote/internal/ports"
)

func RegisterRoutes(r chi.Router, hAuth *AuthHandler, auth ports.AuthService, hNotes *NoteHandler, hWallet *WalletHandler) {

	// login stays public
	r.Post("/api/login", hAuth.Login)

	r.Group(func(pr chi.Router) {
		pr.Use(AuthMiddleware(auth))

		pr.Post("/api/notes/upload-credential", hNotes.CreateUploadCredential)
		pr.Post("/api/notes/process", hNotes.ProcessUpload)
		pr.Post("/api/notes/{id}/process", hNotes.Process)
		pr.Get("/api/notes/{id}", hNotes.Get)
		pr.Post("/api/notes/{id}/retry", hNotes.Retry)

		pr.Get("/api/wallet", hWallet.Get)
	})
}
