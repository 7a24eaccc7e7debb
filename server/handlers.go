package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/jrsteele09/go-authz-engine/subjects"
	"github.com/jrsteele09/go-authz-engine/token"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type revokeRequest struct {
	FamilyID string `json:"family_id"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// LoginHandler authenticates credentials and issues a fresh token pair,
// starting a new token family.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAuthenticationRequired(w)
			return
		}

		subject, err := subjects.Authenticate(s.subjects, req.Username, req.Password)
		if err != nil {
			writeAuthenticationRequired(w)
			return
		}

		access, refreshToken, err := s.tokens.Issue(r.Context(), subject.ID, subject.Claims)
		if err != nil {
			writeStorageUnavailable(w)
			return
		}

		writeTokenPair(w, access, refreshToken)
	}
}

// RefreshHandler rotates a refresh token. Every token failure maps to the
// same generic re-authenticate response so the caller cannot distinguish
// replay detection from an ordinary invalid or expired token.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
			writeAuthenticationRequired(w)
			return
		}

		access, refreshToken, err := s.tokens.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			if errors.Is(err, token.ErrStorageUnavailable) {
				writeStorageUnavailable(w)
				return
			}
			writeAuthenticationRequired(w)
			return
		}

		writeTokenPair(w, access, refreshToken)
	}
}

// LogoutHandler revokes the family of the presented refresh token. Always
// responds with 204; unknown tokens reveal nothing.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if err := s.tokens.RevokeToken(r.Context(), req.RefreshToken); err != nil {
			log.Error().Err(err).Msg("logout revocation failed")
			writeStorageUnavailable(w)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// MeHandler returns the authenticated principal's claims. It doubles as the
// sample protected resource.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeAuthenticationRequired(w)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"subject_id": p.SubjectID(),
			"claims":     p.Claims(),
			"roles":      p.Roles(),
		})
	}
}

// AdminRevokeHandler revokes a whole token family by ID. Route registration
// guards it with the token-administrators policy.
func (s *Server) AdminRevokeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req revokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FamilyID == "" {
			writeErrorJSON(w, http.StatusBadRequest, `{"error":"invalid_request"}`)
			return
		}

		if err := s.tokens.RevokeFamily(r.Context(), req.FamilyID); err != nil {
			writeStorageUnavailable(w)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type subjectSummary struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Disabled bool     `json:"disabled"`
}

// AdminSubjectsHandler lists subjects in ID order with offset/limit paging.
// Password hashes never leave the store.
func (s *Server) AdminSubjectsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset := queryInt(r, "offset", 0)
		limit := queryInt(r, "limit", 50)

		listed, err := s.subjects.List(offset, limit)
		if err != nil {
			writeStorageUnavailable(w)
			return
		}

		summaries := make([]subjectSummary, 0, len(listed))
		for _, subject := range listed {
			summaries = append(summaries, subjectSummary{
				ID:       subject.ID,
				Username: subject.Username,
				Roles:    subject.Principal().Roles(),
				Disabled: subject.Disabled,
			})
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(map[string]any{"subjects": summaries})
	}
}

func queryInt(r *http.Request, name string, defaultValue int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return defaultValue
	}
	return parsed
}

func writeTokenPair(w http.ResponseWriter, access, refreshToken string) {
	w.Header().Set("Content-Type", contentTypeJSON)
	_ = json.NewEncoder(w).Encode(tokenPairResponse{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	})
}

func writeAuthenticationRequired(w http.ResponseWriter) {
	writeErrorJSON(w, http.StatusUnauthorized, `{"error":"invalid_grant","error_description":"re-authenticate"}`)
}

func writeAccessDenied(w http.ResponseWriter) {
	writeErrorJSON(w, http.StatusForbidden, `{"error":"access_denied"}`)
}

func writeStorageUnavailable(w http.ResponseWriter) {
	writeErrorJSON(w, http.StatusServiceUnavailable, `{"error":"temporarily_unavailable"}`)
}

func writeErrorJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
