package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

var (
	errSlugRequired   = errors.New("slug required")
	errInvalidRoomID  = errors.New("roomId must be a positive integer")
	errMissingBearer  = errors.New("authorization required")
	errRoomNameNeeded = errors.New("roomName required")
)

func validateSlug(slug string) error {
	if param(slug) == "" {
		return errSlugRequired
	}
	return nil
}

// parseRoomID parses a numeric room id path segment.
func parseRoomID(raw string) (uint, error) {
	id, err := strconv.ParseUint(param(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, errInvalidRoomID
	}
	return uint(id), nil
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// A bare token without the scheme is accepted too.
func bearerToken(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", errMissingBearer
	}
	if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
		h = strings.TrimSpace(token)
	} else if strings.EqualFold(h, "Bearer") {
		h = ""
	}
	if h == "" {
		return "", errMissingBearer
	}
	return h, nil
}
