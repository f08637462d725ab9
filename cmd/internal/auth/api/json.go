package authapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
)

var errEmptyBody = errors.New("empty body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, userID string) {
	writeJSON(w, http.StatusOK, successResponse{Success: true, UserID: userID})
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, failureResponse{Success: false, Detail: detail})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer func() { _ = r.Body.Close() }()

	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	// Ensure there is no extra data after the first JSON value.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}

// bodyKind reports how the request carries its fields.
type bodyKind uint8

const (
	bodyNone bodyKind = iota
	bodyJSON
	bodyForm
)

func requestBodyKind(r *http.Request) bodyKind {
	ct := strings.TrimSpace(r.Header.Get("Content-Type"))
	if ct == "" {
		if r.ContentLength != 0 {
			return bodyJSON
		}
		return bodyNone
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return bodyJSON
	}
	switch {
	case mt == "application/x-www-form-urlencoded", mt == "multipart/form-data":
		return bodyForm
	case mt == "application/json", strings.HasSuffix(mt, "+json"):
		return bodyJSON
	case r.ContentLength == 0:
		return bodyNone
	default:
		return bodyJSON
	}
}
