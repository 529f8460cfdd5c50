package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/i474232898/beach-weather-cache/internal/weather"
)

// GCSStore keeps the cache in one Cloud Storage object. The object
// generation is the version, and writes carry a generation precondition.
type GCSStore struct {
	client *storage.Client
	bucket string
	object string
}

func NewGCSStore(client *storage.Client, bucket, object string) *GCSStore {
	if object == "" {
		object = "beach_weather_cache.json"
	}
	return &GCSStore{client: client, bucket: bucket, object: object}
}

func (s *GCSStore) handle() *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.object)
}

func (s *GCSStore) Load(ctx context.Context) (Snapshot, error) {
	r, err := s.handle().NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return Snapshot{Cache: weather.Cache{}}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("open gs://%s/%s: %w", s.bucket, s.object, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read gs://%s/%s: %w", s.bucket, s.object, err)
	}
	c, err := weather.DecodeCache(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode gs://%s/%s: %w", s.bucket, s.object, err)
	}
	return Snapshot{Cache: c, Version: strconv.FormatInt(r.Attrs.Generation, 10)}, nil
}

func (s *GCSStore) Save(ctx context.Context, c weather.Cache, expectedVersion string) (string, error) {
	data, err := c.Encode()
	if err != nil {
		return "", err
	}

	cond := storage.Conditions{DoesNotExist: true}
	if expectedVersion != "" {
		gen, err := strconv.ParseInt(expectedVersion, 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid generation %q: %w", expectedVersion, err)
		}
		cond = storage.Conditions{GenerationMatch: gen}
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.handle().If(cond).NewWriter(wctx)
	w.ContentType = "application/json; charset=utf-8"
	if _, err := w.Write(data); err != nil {
		cancel()
		w.Close()
		return "", s.classify(err)
	}
	if err := w.Close(); err != nil {
		return "", s.classify(err)
	}
	return strconv.FormatInt(w.Attrs().Generation, 10), nil
}

func (s *GCSStore) classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%w: gs://%s/%s generation changed", ErrConflict, s.bucket, s.object)
	}
	return fmt.Errorf("write gs://%s/%s: %w", s.bucket, s.object, err)
}
