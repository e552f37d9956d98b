package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"f0oster/lineage/apperrors"
	"f0oster/lineage/lineage"
	"f0oster/lineage/models"
	"f0oster/lineage/modules"
	"f0oster/lineage/permissions"
	"f0oster/lineage/relations"
	"f0oster/lineage/snapshot"
	"f0oster/lineage/storage"

	"go.uber.org/zap"
)

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrConflict, apperrors.ErrInvalidState:
		return http.StatusConflict
	case apperrors.ErrPermissionDenied:
		return http.StatusForbidden
	case apperrors.ErrIntegrityViolation:
		return http.StatusUnprocessableEntity
	case apperrors.ErrInvalidInput:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes err. Unclassified errors are logged and hidden from the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, status, "internal error")
		return
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		writeError(w, status, appErr.Msg)
		return
	}
	writeError(w, status, err.Error())
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actor permissions.Actor)

// withActor resolves the caller before running a mutating handler.
func (s *Server) withActor(h actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.identity.Resolve(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		h(w, r, actor)
	}
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.InvalidInput("invalid request body: %v", err)
	}
	return nil
}

func moduleID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.InvalidInput("invalid module id %q", r.PathValue("id"))
	}
	return id, nil
}

// resolveParams reads the at and mode query parameters. At defaults to now
// and mode to valid.
func (s *Server) resolveParams(r *http.Request) (time.Time, lineage.Mode, error) {
	q := r.URL.Query()
	at := s.now()
	if raw := q.Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, 0, apperrors.InvalidInput("invalid at %q: expected RFC 3339", raw)
		}
		at = parsed
	}
	switch mode := q.Get("mode"); mode {
	case "", "valid":
		return at, lineage.Valid, nil
	case "latest":
		return at, lineage.Latest, nil
	default:
		return time.Time{}, 0, apperrors.InvalidInput("invalid mode %q", mode)
	}
}

func parseBool(q string, name string) (bool, error) {
	if q == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(q)
	if err != nil {
		return false, apperrors.InvalidInput("invalid %s %q", name, q)
	}
	return b, nil
}

// Main timeline handlers

func (s *Server) handleResolveObject(w http.ResponseWriter, r *http.Request) {
	at, mode, err := s.resolveParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	version, err := s.services.Snapshots.ResolveLatest(r.Context(), r.PathValue("code"), at, mode)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVersionResponse(version))
}

func (s *Server) handleResolveSnapshot(w http.ResponseWriter, r *http.Request) {
	at, mode, err := s.resolveParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	versions, err := s.services.Snapshots.ResolveSnapshot(r.Context(), r.PathValue("type"), at, mode)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": toVersionResponses(versions)})
}

func (s *Server) handleLineageHistory(w http.ResponseWriter, r *http.Request) {
	versions, err := s.services.Snapshots.LineageHistory(r.Context(), r.PathValue("code"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": toVersionResponses(versions)})
}

func (s *Server) handleModuleDrafts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	at, _, err := s.resolveParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	onlyActive, err := parseBool(q.Get("only_active"), "only_active")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	filter := snapshot.DraftFilter{
		At:            at,
		OnlyActive:    onlyActive,
		MinimumStatus: models.StatusCode(q.Get("minimum_status")),
	}
	drafts, err := s.services.Snapshots.ModuleDrafts(r.Context(), r.PathValue("code"), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": toModuleDraftResponses(drafts)})
}

// Module lifecycle handlers

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter storage.ModuleFilter
	var err error
	if filter.OnlyActive, err = parseBool(q.Get("only_active"), "only_active"); err != nil {
		s.fail(w, r, err)
		return
	}
	if raw := q.Get("ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				s.fail(w, r, apperrors.InvalidInput("invalid module id %q", part))
				return
			}
			filter.IDs = append(filter.IDs, id)
		}
	}
	found, err := s.services.Modules.ListModules(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": toModuleSummaryResponses(found)})
}

func (s *Server) handleCreateModule(w http.ResponseWriter, r *http.Request, actor permissions.Actor) {
	var req createModuleRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	module, err := s.services.Modules.CreateModule(r.Context(), actor, modules.CreateModuleInput{
		Title:              req.Title,
		Description:        req.Description,
		ModuleManager1UUID: req.ModuleManager1UUID,
		ModuleManager2UUID: req.ModuleManager2UUID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toModuleResponse(module))
}

func (s *Server) handleModuleOverview(w http.ResponseWriter, r *http.Request) {
	id, err := moduleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	overview, err := s.services.Modules.Overview(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOverviewResponse(overview))
}

func (s *Server) handleEditModule(w http.ResponseWriter, r *http.Request, actor permissions.Actor) {
	id, err := moduleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req editModuleRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	module, err := s.services.Modules.EditModule(r.Context(), actor, id, modules.EditModuleInput{
		Title:              req.Title,
		Description:        req.Description,
		ModuleManager1UUID: req.ModuleManager1UUID,
		ModuleManager2UUID: req.ModuleManager2UUID,
		TemporaryLocked:    req.TemporaryLocked,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toModuleResponse(module))
}

func (s *Server) handleActivateModule(w http.ResponseWriter, r *http.Request, actor permissions.Actor) {
	id, err := moduleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status, err := s.services.Modules.Activate(r.Context(), actor, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(status))
}

func (s *Server) handlePatchStatus(w http.ResponseWriter, r *http.Request, actor permissions.Actor) {
	id, err := moduleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req statusRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	status, err := s.services.Modules.PatchStatus(r.Context(), actor, id, models.StatusCode(req.Status))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(status))
}

func (s *Server) handleCloseModule(w http.ResponseWriter, r *http.Request, actor permissions.Actor) {
	id, err := moduleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.services.Modules.Close(r.Context(), actor, id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompleteModule(w http.ResponseWriter, r *http.Request, actor permissions.Actor) {
	id, err := moduleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req completeRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	result, err := s.services.Modules.Complete(r.Context(), actor, id, req.StartValidity)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompleteResponse(result))
}

// Module workspace handlers

func (s *Server) handleAddExistingObject(w http.ResponseWriter, r *http.Request, actor permissions.Actor) {
	id, err := moduleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req addExistingObjectRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	objectContext, err := s.services.Modules.AddExistingObject(r.Context(), actor, id, modules.AddExistingObjectInput{
		Code:        req.Code,
		Action:      models.ObjectAction(req.Action),
		Explanation: req.Explanation,
		Conclusion:  req.Conclusion,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContextResponse(objectContext))
}

func (s *Server) handleAddNewObject(w http.ResponseWriter, r *http.Request, actor permissions.Actor) {
	id, err := moduleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req addNewObjectRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	static, err := s.services.Modules.AddNewObject(r.Context(), actor, id, modules.AddNewObjectInput{
		ObjectType:   req.ObjectType,
		Title:        req.Title,
		OwnerOneUUID: req.OwnerOneUUID,
		OwnerTwoUUID: req.OwnerTwoUUID,
		Explanation:  req.Explanation,
		Conclusion:   req.Conclusion,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStaticResponse(static))
}

func (s *Server) handlePatchObject(w http.ResponseWriter, r *http.Request, actor permissions.Actor) {
	id, err := moduleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	changes := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		s.fail(w, r, apperrors.InvalidInput("invalid request body: %v", err))
		return
	}
	draft, err := s.services.Modules.PatchObject(r.Context(), actor, id, r.PathValue("code"), changes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDraftResponse(draft))
}

func (s *Server) handleRemoveObject(w http.ResponseWriter, r *http.Request, actor permissions.Actor) {
	id, err := moduleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.services.Modules.RemoveObject(r.Context(), actor, id, r.PathValue("code")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEditObjectContext(w http.ResponseWriter, r *http.Request, actor permissions.Actor) {
	id, err := moduleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req editContextRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	in := modules.EditContextInput{Explanation: req.Explanation, Conclusion: req.Conclusion}
	if req.Action != nil {
		action := models.ObjectAction(*req.Action)
		in.Action = &action
	}
	objectContext, err := s.services.Modules.EditObjectContext(r.Context(), actor, id, r.PathValue("code"), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContextResponse(objectContext))
}

func (s *Server) handleObjectDiff(w http.ResponseWriter, r *http.Request) {
	id, err := moduleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.services.Modules.Diff(r.Context(), id, r.PathValue("code"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDiffResponse(d))
}

func (s *Server) handleDraftHistory(w http.ResponseWriter, r *http.Request) {
	id, err := moduleID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	drafts, err := s.services.Modules.DraftHistory(r.Context(), id, r.PathValue("code"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": toDraftResponses(drafts)})
}

// Relation handlers

func (s *Server) handleListRelations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter relations.ListFilter
	var err error
	if filter.RequestedByMe, err = parseBool(q.Get("requested_by_me"), "requested_by_me"); err != nil {
		s.fail(w, r, err)
		return
	}
	if filter.ShowInactive, err = parseBool(q.Get("show_inactive"), "show_inactive"); err != nil {
		s.fail(w, r, err)
		return
	}
	if raw := q.Get("acknowledged"); raw != "" {
		acknowledged, err := parseBool(raw, "acknowledged")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		filter.Acknowledged = &acknowledged
	}
	list, err := s.services.Relations.List(r.Context(), r.PathValue("code"), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"relations": toRelationResponses(list)})
}

func (s *Server) handleGetRelation(w http.ResponseWriter, r *http.Request) {
	view, err := s.services.Relations.Get(r.Context(), r.PathValue("code"), r.PathValue("other"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRelationResponse(view))
}

func (s *Server) handleRequestRelation(w http.ResponseWriter, r *http.Request, actor permissions.Actor) {
	var req relationRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.services.Relations.Request(r.Context(), actor, relations.RequestInput{
		Code:        r.PathValue("code"),
		OtherCode:   strings.TrimSpace(req.OtherCode),
		Title:       req.Title,
		Explanation: req.Explanation,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRelationResponse(view))
}

func (s *Server) handleEditRelation(w http.ResponseWriter, r *http.Request, actor permissions.Actor) {
	var req relationEditRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.services.Relations.Edit(r.Context(), actor, r.PathValue("code"), r.PathValue("other"), relations.EditInput{
		Title:        req.Title,
		Explanation:  req.Explanation,
		Acknowledged: req.Acknowledged,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRelationResponse(view))
}

type relationOp func(ctx context.Context, actor permissions.Actor, code, other string) (models.RelationView, error)

// handleRelationOp serves the body-less transitions of one relation.
func (s *Server) handleRelationOp(op relationOp) actorHandler {
	return func(w http.ResponseWriter, r *http.Request, actor permissions.Actor) {
		view, err := op(r.Context(), actor, r.PathValue("code"), r.PathValue("other"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toRelationResponse(view))
	}
}
