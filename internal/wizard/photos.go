package wizard

import (
	"context"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
)

// PhotoBucket is the storage bucket holding listing photos.
const PhotoBucket = "listing-photos"

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, bucket, objectPath, contentType string, body io.Reader) (string, error)
}

var photoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// UploadPhoto stores one photo and appends its URL to the draft. While the upload runs the file
// name is listed in the draft's pending uploads, which are never persisted.
func (w *Wizard) UploadPhoto(ctx context.Context, up Uploader, name, contentType string, body io.Reader) (string, error) {
	ext, ok := photoTypes[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("%w: unsupported photo type %q", errs.ErrValidation, contentType)
	}
	w.touch()

	w.photoMu.Lock()
	pending := append(slices.Clone(w.saver.Draft().PendingUploads), name)
	w.saver.Update(model.DraftPatch{PendingUploads: &pending})
	w.photoMu.Unlock()

	objectPath := path.Join(w.OwnerID.String(), w.ID.String(), uuid.Must(uuid.NewV4()).String()+ext)
	url, err := up.Upload(ctx, PhotoBucket, objectPath, contentType, body)

	w.photoMu.Lock()
	defer w.photoMu.Unlock()
	d := w.saver.Draft()
	rest := slices.Clone(d.PendingUploads)
	if i := slices.Index(rest, name); i >= 0 {
		rest = slices.Delete(rest, i, i+1)
	}
	patch := model.DraftPatch{PendingUploads: &rest}
	if err == nil {
		photos := append(slices.Clone(d.Photos), url)
		patch.Photos = &photos
	}
	w.saver.Update(patch)
	if err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}
	return url, nil
}

// RemovePhoto drops a photo URL from the draft.
func (w *Wizard) RemovePhoto(url string) model.ListingDraft {
	w.photoMu.Lock()
	defer w.photoMu.Unlock()
	photos := slices.DeleteFunc(slices.Clone(w.saver.Draft().Photos), func(p string) bool { return p == url })
	return w.Update(model.DraftPatch{Photos: &photos})
}
