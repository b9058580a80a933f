package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
	"norelock.dev/soundscope/internal/utils"
)

type HandlerFunc1[T any] func(w http.ResponseWriter, r *http.Request, data T)

func idFromParam(w http.ResponseWriter, r *http.Request) bson.ObjectID {
	id := chi.URLParam(r, "id")
	if id == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "ID is required")
		return bson.NilObjectID
	}
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid ID format")
		return bson.NilObjectID
	}
	return oid
}

// WithID passes the {id} URL parameter to handler as an ObjectID.
func WithID(handler HandlerFunc1[bson.ObjectID]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := idFromParam(w, r)
		if id.IsZero() {
			return
		}
		handler(w, r, id)
	}
}

// WithBody decodes and validates the JSON body before calling handler.
func WithBody[T any](handler HandlerFunc1[*T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var data T
		if err := utils.DecodeJSON(r, &data); err != nil {
			var appErr *utils.AppError
			if errors.As(err, &appErr) {
				utils.RespondWithAppError(w, err)
				return
			}
			utils.RespondWithValidationError(w, err)
			return
		}
		handler(w, r, &data)
	}
}
