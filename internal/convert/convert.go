// Package convert orchestrates the two conversion pipelines: HTML to PDF and
// PDF to an editable document. Both end in the same persistence step and
// response shape.
package convert

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/rs/xid"

	"docconvert/internal/domain"
	"docconvert/internal/infra/storage"
)

// Store is the artifact store a pipeline persists into.
type Store interface {
	Put(key string, data []byte) (int64, error)
	Read(key string) ([]byte, error)
	URL(key string) string
}

// resolveFilename canonicalises name for ext, generating a unique name when
// the caller supplied none.
func resolveFilename(name, ext string, replace ...string) (string, error) {
	if strings.TrimSpace(name) == "" {
		name = "document-" + xid.New().String()
	}
	return domain.CanonicalFilename(name, ext, replace...)
}

// persist stores data under key while holding the key lock and builds the
// response. The inline payload is read back from the store, never taken from
// data.
func persist(ctx context.Context, store Store, locker storage.Locker, key string, data []byte, inline bool) (domain.ConversionResponse, error) {
	if locker != nil {
		unlock, err := locker.Lock(ctx, key)
		if err != nil {
			return domain.ConversionResponse{}, domain.Wrap(domain.ErrPersist, err)
		}
		defer unlock()
	}

	size, err := store.Put(key, data)
	if err != nil {
		return domain.ConversionResponse{}, err
	}

	resp := domain.ConversionResponse{
		Success:  true,
		URL:      store.URL(key),
		Filename: key,
		SizeKB:   domain.SizeKB(size),
	}
	if inline {
		stored, err := store.Read(key)
		if err != nil {
			if !errors.Is(err, domain.ErrPersist) {
				err = domain.Wrap(domain.ErrPersist, err)
			}
			return domain.ConversionResponse{}, err
		}
		resp.InlinePayload = base64.StdEncoding.EncodeToString(stored)
	}
	return resp, nil
}
