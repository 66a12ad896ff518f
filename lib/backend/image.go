package backend

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/Genosoo/expoasia-web-app/lib/challenge"
)

// Image is a downloaded credential image.
type Image struct {
	ContentType string
	Data        []byte
}

// FetchImage loads a credential image. ref may be an absolute http(s) URL,
// a path relative to the backend root or a data: URL.
func (b *Backend) FetchImage(ctx context.Context, ref string) (*Image, error) {
	if strings.HasPrefix(ref, "data:") {
		return decodeDataURL(ref)
	}

	target, err := b.base.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadURL, err)
	}

	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrBadURL, target.Scheme)
	}

	ctx, span := tracer.Start(ctx, "backend image")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.images.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, challenge.NewError(challenge.ErrNetwork, "fetch credential", "error_backend_unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, challenge.NewError(challenge.ErrServer, "fetch credential", "error_backend_rejected",
			fmt.Errorf("%s answered %d", target.Redacted(), resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImage))
	if err != nil {
		return nil, challenge.NewError(challenge.ErrNetwork, "fetch credential", "error_backend_unreachable", err)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}

	return &Image{ContentType: ct, Data: data}, nil
}

// decodeDataURL handles data:[<mediatype>][;base64],<data>.
func decodeDataURL(ref string) (*Image, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("%w: no comma", ErrBadDataURL)
	}

	isBase64 := false
	if h, found := strings.CutSuffix(header, ";base64"); found {
		header = h
		isBase64 = true
	}

	ct := "text/plain;charset=US-ASCII"
	if header != "" {
		if _, _, err := mime.ParseMediaType(header); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadDataURL, err)
		}
		ct = header
	}

	var data []byte
	if isBase64 {
		var err error
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadDataURL, err)
		}
	} else {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadDataURL, err)
		}
		data = []byte(s)
	}

	if len(data) > maxImage {
		return nil, fmt.Errorf("%w: image larger than %d bytes", ErrBadDataURL, maxImage)
	}

	return &Image{ContentType: ct, Data: data}, nil
}
