// internal/api/members/children.go
package members

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Fitclub/internal/api/apiutil"
	appdb "github.com/codr1/Fitclub/internal/db"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/models"
)

const birthDateLayout = "2006-01-02"

type childRequest struct {
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	BirthDate *string `json:"birth_date,omitempty"`
}

func (c *childRequest) normalize() error {
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	if c.FirstName == "" || c.LastName == "" {
		return errors.New("first_name and last_name are required")
	}
	if c.BirthDate == nil {
		return nil
	}
	raw := strings.TrimSpace(*c.BirthDate)
	if raw == "" {
		c.BirthDate = nil
		return nil
	}
	born, err := time.Parse(birthDateLayout, raw)
	if err != nil {
		return errors.New("birth_date must be YYYY-MM-DD")
	}
	if born.After(time.Now()) {
		return errors.New("birth_date cannot be in the future")
	}
	c.BirthDate = &raw
	return nil
}

// GET /api/v1/me/children
func HandleMyChildren(w http.ResponseWriter, r *http.Request) {
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}
	writeChildren(w, r, user.ID)
}

// POST /api/v1/me/children
func HandleChildCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	req, ok := decodeChild(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), memberQueryTimeout)
	defer cancel()

	child, err := q.CreateChild(ctx, dbq.CreateChildParams{
		ParentUserID: user.ID,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		BirthDate:    req.BirthDate,
	})
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to create child")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to save child")
		return
	}

	logger.Info().Int64("child_id", child.ID).Int64("user_id", user.ID).Msg("Child added")
	if err := apiutil.WriteJSON(w, http.StatusCreated, child); err != nil {
		logger.Error().Err(err).Int64("child_id", child.ID).Msg("Failed to write child response")
	}
}

// PUT /api/v1/me/children/{id}
func HandleChildUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, ok := decodeChild(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), memberQueryTimeout)
	defer cancel()

	child, err := q.UpdateChild(ctx, dbq.UpdateChildParams{
		ID:           id,
		ParentUserID: user.ID,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		BirthDate:    req.BirthDate,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Child not found")
			return
		}
		logger.Error().Err(err).Int64("child_id", id).Msg("Failed to update child")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to save child")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, child); err != nil {
		logger.Error().Err(err).Int64("child_id", id).Msg("Failed to write child response")
	}
}

// DELETE /api/v1/me/children/{id}
func HandleChildDelete(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), memberQueryTimeout)
	defer cancel()

	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		return models.RemoveChild(ctx, txdb.Queries, id, user.ID, time.Now().UTC())
	})
	if err != nil {
		apiutil.WriteHandlerError(w, r, apiutil.DomainError(err, "Failed to delete child"), "Failed to delete child")
		return
	}

	logger.Info().Int64("child_id", id).Int64("user_id", user.ID).Msg("Child removed")
	w.WriteHeader(http.StatusNoContent)
}

func decodeChild(w http.ResponseWriter, r *http.Request) (childRequest, bool) {
	var req childRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return childRequest{}, false
	}
	if err := req.normalize(); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return childRequest{}, false
	}
	return req, true
}

func writeChildren(w http.ResponseWriter, r *http.Request, parentID int64) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), memberQueryTimeout)
	defer cancel()

	children, err := q.ListChildrenByParent(ctx, parentID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", parentID).Msg("Failed to list children")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load children")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{"children": children}); err != nil {
		logger.Error().Err(err).Int64("user_id", parentID).Msg("Failed to write children response")
	}
}
