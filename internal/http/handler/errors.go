package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sandeepkv93/carspot-identity-service/internal/domain"
	"github.com/sandeepkv93/carspot-identity-service/internal/http/middleware"
	"github.com/sandeepkv93/carspot-identity-service/internal/http/response"
	"github.com/sandeepkv93/carspot-identity-service/internal/service"
)

var errEmptyBody = errors.New("request body is required")

// writeServiceError is the single place where service error kinds become HTTP
// statuses. Internal errors never leak their cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	typed := service.AsError(err)
	switch typed.Kind {
	case service.KindValidation:
		status := http.StatusBadRequest
		if errors.Is(typed, service.ErrDuplicateEmail) {
			status = http.StatusConflict
		}
		response.Error(w, r, status, typed.Code, typed.Message, nil)
	case service.KindUnauthenticated:
		response.Error(w, r, http.StatusUnauthorized, typed.Code, typed.Message, nil)
	case service.KindForbidden:
		response.Error(w, r, http.StatusForbidden, typed.Code, typed.Message, nil)
	case service.KindNotFound:
		response.Error(w, r, http.StatusNotFound, typed.Code, typed.Message, nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, service.ErrInternal.Code, service.ErrInternal.Message, nil)
	}
}

// decodeJSON reads a JSON body into dst. An empty body is an error unless
// optional is set.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	if r.Body == nil {
		if optional {
			return nil
		}
		return errEmptyBody
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		if optional {
			return nil
		}
		return errEmptyBody
	default:
		return err
	}
}

func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		response.Error(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
		return
	}
	if errors.Is(err, errEmptyBody) {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
}

func currentAccount(w http.ResponseWriter, r *http.Request) (*domain.Account, bool) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return nil, false
	}
	return account, true
}

func parsePathID(input string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(input), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", input)
	}
	return uint(id), nil
}

func accountIDString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
