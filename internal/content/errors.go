package content

import (
	"errors"
	"fmt"

	"maritimeacademy/site-admin/internal/docstore"
)

var (
	ErrInvalidInput = errors.New("invalid content input")

	ErrEventNotFound      = fmt.Errorf("%w: event", docstore.ErrNotFound)
	ErrArticleNotFound    = fmt.Errorf("%w: news article", docstore.ErrNotFound)
	ErrSlugInUse          = fmt.Errorf("%w: slug already in use", docstore.ErrConflict)
	ErrEventFull          = fmt.Errorf("%w: event is full", docstore.ErrConflict)
	ErrRegistrationClosed = fmt.Errorf("%w: registration is not open", docstore.ErrConflict)
)

func notFound(err, sentinel error) error {
	if errors.Is(err, docstore.ErrNotFound) && !errors.Is(err, sentinel) {
		return sentinel
	}
	return err
}
