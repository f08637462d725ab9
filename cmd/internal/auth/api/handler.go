package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"

	"relay/cmd/identity"
)

const (
	msgInvalidBody = "Invalid request body."
	msgInternal    = "Internal server error."
)

// Credentials is the account service the handler fronts.
type Credentials interface {
	Register(ctx context.Context, in identity.RegisterInput) (identity.User, error)
	Authenticate(ctx context.Context, identifier, password string) (identity.User, error)
}

// Handler serves POST /register and POST /login.
type Handler struct {
	log   *slog.Logger
	creds Credentials
	cfg   Config
}

func NewHandler(log *slog.Logger, creds Credentials, cfg Config) (*Handler, error) {
	if creds == nil {
		return nil, errors.New("authapi: credentials service is required")
	}
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Handler{log: log, creds: creds, cfg: cfg.withDefaults()}, nil
}

// Register mounts the auth routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /register", h.handleRegister)
	mux.HandleFunc("POST /login", h.handleLogin)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	f, ok := h.readFields(w, r, "username", "email", "password")
	if !ok {
		return
	}
	req := registerRequest{Username: f["username"], Email: f["email"], Password: f["password"]}

	user, err := h.creds.Register(r.Context(), identity.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeServiceError(w, r, "auth.register", err)
		return
	}

	h.log.Info("auth.register.ok", "user_id", user.PublicID, "ip", ipString(clientIP(r, h.cfg.TrustProxy)))
	writeSuccess(w, user.PublicID)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	f, ok := h.readFields(w, r, "identifier", "password")
	if !ok {
		return
	}
	req := loginRequest{Identifier: f["identifier"], Password: f["password"]}

	user, err := h.creds.Authenticate(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.writeServiceError(w, r, "auth.login", err)
		return
	}

	h.log.Info("auth.login.ok", "user_id", user.PublicID, "ip", ipString(clientIP(r, h.cfg.TrustProxy)))
	writeSuccess(w, user.PublicID)
}

// readFields collects keys from a JSON body, a form body or the query string.
// A key missing or empty in a JSON body falls back to the query string.
// On an unreadable body it writes the 400 itself and returns false.
func (h *Handler) readFields(w http.ResponseWriter, r *http.Request, keys ...string) (map[string]string, bool) {
	query := r.URL.Query()
	out := make(map[string]string, len(keys))

	switch requestBodyKind(r) {
	case bodyForm:
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
		var err error
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			err = r.ParseMultipartForm(h.cfg.MaxBodyBytes)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			h.log.Info("auth.request.invalid_form", "path", r.URL.Path, "err", err)
			writeError(w, http.StatusBadRequest, msgInvalidBody)
			return nil, false
		}
		for _, k := range keys {
			out[k] = r.FormValue(k)
		}
		return out, true

	case bodyJSON:
		var body map[string]any
		err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &body)
		if err != nil && !errors.Is(err, errEmptyBody) {
			h.log.Info("auth.request.invalid_json", "path", r.URL.Path, "err", err)
			writeError(w, http.StatusBadRequest, msgInvalidBody)
			return nil, false
		}
		for _, k := range keys {
			switch v := body[k].(type) {
			case nil:
			case string:
				out[k] = v
			default:
				h.log.Info("auth.request.invalid_field", "path", r.URL.Path, "field", k)
				writeError(w, http.StatusBadRequest, msgInvalidBody)
				return nil, false
			}
			if out[k] == "" {
				out[k] = query.Get(k)
			}
		}
		return out, true

	default:
		for _, k := range keys {
			out[k] = query.Get(k)
		}
		return out, true
	}
}

// writeServiceError maps identity errors to responses. Internal error text
// never reaches the client.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var ve identity.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Msg)
	case identity.IsConflict(err):
		writeError(w, http.StatusBadRequest, identity.MsgAlreadyExists)
	case identity.IsInvalidCredentials(err):
		h.log.Info(op+".denied", "ip", ipString(clientIP(r, h.cfg.TrustProxy)))
		writeError(w, http.StatusUnauthorized, identity.MsgInvalidCredentials)
	case errors.Is(err, context.Canceled):
		h.log.Info(op+".canceled", "err", err)
		writeError(w, http.StatusServiceUnavailable, msgInternal)
	default:
		h.log.Error(op+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
