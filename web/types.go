package web

import (
	"time"

	"f0oster/lineage/diff"
	"f0oster/lineage/models"
	"f0oster/lineage/modules"
	"f0oster/lineage/snapshot"

	"github.com/google/uuid"
)

// Response types for JSON serialization

type VersionResponse struct {
	UUID           uuid.UUID      `json:"uuid"`
	Code           string         `json:"code"`
	ObjectType     string         `json:"object_type"`
	ObjectID       int64          `json:"object_id"`
	AdjustOn       *uuid.UUID     `json:"adjust_on"`
	CreatedDate    time.Time      `json:"created_date"`
	CreatedByUUID  uuid.UUID      `json:"created_by_uuid"`
	ModifiedDate   time.Time      `json:"modified_date"`
	ModifiedByUUID uuid.UUID      `json:"modified_by_uuid"`
	StartValidity  *time.Time     `json:"start_validity"`
	EndValidity    *time.Time     `json:"end_validity"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Fields         map[string]any `json:"fields"`
}

type DraftResponse struct {
	VersionResponse
	ModuleID int64 `json:"module_id"`
	Deleted  bool  `json:"deleted"`
}

type StaticResponse struct {
	Code         string     `json:"code"`
	ObjectType   string     `json:"object_type"`
	ObjectID     int64      `json:"object_id"`
	OwnerOneUUID *uuid.UUID `json:"owner_1_uuid"`
	OwnerTwoUUID *uuid.UUID `json:"owner_2_uuid"`
	CachedTitle  string     `json:"cached_title"`
}

type ModuleResponse struct {
	ModuleID           int64      `json:"module_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	ModuleManager1UUID uuid.UUID  `json:"module_manager_1_uuid"`
	ModuleManager2UUID *uuid.UUID `json:"module_manager_2_uuid"`
	Activated          bool       `json:"activated"`
	Closed             bool       `json:"closed"`
	Successful         bool       `json:"successful"`
	TemporaryLocked    bool       `json:"temporary_locked"`
	CreatedDate        time.Time  `json:"created_date"`
	CreatedByUUID      uuid.UUID  `json:"created_by_uuid"`
	ModifiedDate       time.Time  `json:"modified_date"`
	ModifiedByUUID     uuid.UUID  `json:"modified_by_uuid"`
}

type ModuleSummaryResponse struct {
	Module ModuleResponse  `json:"module"`
	Status *StatusResponse `json:"status"`
}

type StatusResponse struct {
	ID            int64     `json:"id"`
	Status        string    `json:"status"`
	CreatedDate   time.Time `json:"created_date"`
	CreatedByUUID uuid.UUID `json:"created_by_uuid"`
}

type ContextResponse struct {
	ModuleID         int64      `json:"module_id"`
	Code             string     `json:"code"`
	Action           string     `json:"action"`
	Explanation      string     `json:"explanation"`
	Conclusion       string     `json:"conclusion"`
	OriginalAdjustOn *uuid.UUID `json:"original_adjust_on"`
	Hidden           bool       `json:"hidden"`
	ModifiedDate     time.Time  `json:"modified_date"`
	ModifiedByUUID   uuid.UUID  `json:"modified_by_uuid"`
}

type OverviewResponse struct {
	Module        ModuleResponse    `json:"module"`
	Status        *StatusResponse   `json:"status"`
	StatusHistory []StatusResponse  `json:"status_history"`
	Contexts      []ContextResponse `json:"contexts"`
	Drafts        []DraftResponse   `json:"drafts"`
}

type FieldChangeResponse struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

type DiffResponse struct {
	Code    string                `json:"code"`
	Draft   DraftResponse         `json:"draft"`
	Base    *VersionResponse      `json:"base"`
	Changes []FieldChangeResponse `json:"changes"`
}

type CommitResponse struct {
	Code           string          `json:"code"`
	Action         string          `json:"action"`
	Version        VersionResponse `json:"version"`
	TitleRefreshed bool            `json:"title_refreshed"`
}

type CompleteResponse struct {
	Module      ModuleResponse   `json:"module"`
	CompletedAt time.Time        `json:"completed_at"`
	Commits     []CommitResponse `json:"commits"`
}

type ModuleDraftResponse struct {
	Module ModuleResponse  `json:"module"`
	Status *StatusResponse `json:"status"`
	Draft  DraftResponse   `json:"draft"`
}

type RelationSideResponse struct {
	Code               string     `json:"code"`
	Title              string     `json:"title"`
	Explanation        string     `json:"explanation"`
	AcknowledgedDate   *time.Time `json:"acknowledged_date"`
	AcknowledgedByUUID *uuid.UUID `json:"acknowledged_by_uuid"`
}

type RelationResponse struct {
	SideA           RelationSideResponse `json:"side_a"`
	SideB           RelationSideResponse `json:"side_b"`
	OtherCode       string               `json:"other_code"`
	Version         int                  `json:"version"`
	RequestedByCode string               `json:"requested_by_code"`
	Acknowledged    bool                 `json:"acknowledged"`
	Denied          *time.Time           `json:"denied"`
	DeletedAt       *time.Time           `json:"deleted_at"`
	CreatedDate     time.Time            `json:"created_date"`
	CreatedByUUID   uuid.UUID            `json:"created_by_uuid"`
	ModifiedDate    time.Time            `json:"modified_date"`
	ModifiedByUUID  uuid.UUID            `json:"modified_by_uuid"`
}

// Request types

type createModuleRequest struct {
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	ModuleManager1UUID uuid.UUID  `json:"module_manager_1_uuid"`
	ModuleManager2UUID *uuid.UUID `json:"module_manager_2_uuid"`
}

type editModuleRequest struct {
	Title              *string    `json:"title"`
	Description        *string    `json:"description"`
	ModuleManager1UUID *uuid.UUID `json:"module_manager_1_uuid"`
	ModuleManager2UUID *uuid.UUID `json:"module_manager_2_uuid"`
	TemporaryLocked    *bool      `json:"temporary_locked"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type completeRequest struct {
	StartValidity *time.Time `json:"start_validity"`
}

type addExistingObjectRequest struct {
	Code        string `json:"code"`
	Action      string `json:"action"`
	Explanation string `json:"explanation"`
	Conclusion  string `json:"conclusion"`
}

type addNewObjectRequest struct {
	ObjectType   string     `json:"object_type"`
	Title        string     `json:"title"`
	OwnerOneUUID *uuid.UUID `json:"owner_1_uuid"`
	OwnerTwoUUID *uuid.UUID `json:"owner_2_uuid"`
	Explanation  string     `json:"explanation"`
	Conclusion   string     `json:"conclusion"`
}

type editContextRequest struct {
	Action      *string `json:"action"`
	Explanation *string `json:"explanation"`
	Conclusion  *string `json:"conclusion"`
}

type relationRequest struct {
	OtherCode   string `json:"other_code"`
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
}

type relationEditRequest struct {
	Title        *string `json:"title"`
	Explanation  *string `json:"explanation"`
	Acknowledged *bool   `json:"acknowledged"`
}

// Conversions

func toVersionResponse(v models.ObjectVersion) VersionResponse {
	fields := v.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return VersionResponse{
		UUID:           v.UUID,
		Code:           v.Code,
		ObjectType:     v.ObjectType,
		ObjectID:       v.ObjectID,
		AdjustOn:       v.AdjustOn,
		CreatedDate:    v.CreatedDate,
		CreatedByUUID:  v.CreatedByUUID,
		ModifiedDate:   v.ModifiedDate,
		ModifiedByUUID: v.ModifiedByUUID,
		StartValidity:  v.StartValidity,
		EndValidity:    v.EndValidity,
		Title:          v.Title,
		Description:    v.Description,
		Fields:         fields,
	}
}

func toVersionResponses(vs []models.ObjectVersion) []VersionResponse {
	out := make([]VersionResponse, 0, len(vs))
	for _, v := range vs {
		out = append(out, toVersionResponse(v))
	}
	return out
}

func toDraftResponse(d models.ModuleObjectVersion) DraftResponse {
	return DraftResponse{
		VersionResponse: toVersionResponse(d.ObjectVersion),
		ModuleID:        d.ModuleID,
		Deleted:         d.Deleted,
	}
}

func toDraftResponses(ds []models.ModuleObjectVersion) []DraftResponse {
	out := make([]DraftResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, toDraftResponse(d))
	}
	return out
}

func toStaticResponse(s models.ObjectStatic) StaticResponse {
	return StaticResponse{
		Code:         s.Code,
		ObjectType:   s.ObjectType,
		ObjectID:     s.ObjectID,
		OwnerOneUUID: s.OwnerOneUUID,
		OwnerTwoUUID: s.OwnerTwoUUID,
		CachedTitle:  s.CachedTitle,
	}
}

func toModuleResponse(m models.Module) ModuleResponse {
	return ModuleResponse{
		ModuleID:           m.ModuleID,
		Title:              m.Title,
		Description:        m.Description,
		ModuleManager1UUID: m.ModuleManager1UUID,
		ModuleManager2UUID: m.ModuleManager2UUID,
		Activated:          m.Activated,
		Closed:             m.Closed,
		Successful:         m.Successful,
		TemporaryLocked:    m.TemporaryLocked,
		CreatedDate:        m.CreatedDate,
		CreatedByUUID:      m.CreatedByUUID,
		ModifiedDate:       m.ModifiedDate,
		ModifiedByUUID:     m.ModifiedByUUID,
	}
}

func toModuleSummaryResponses(ms []modules.ModuleSummary) []ModuleSummaryResponse {
	out := make([]ModuleSummaryResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, ModuleSummaryResponse{
			Module: toModuleResponse(m.Module),
			Status: toStatusPtr(m.Status),
		})
	}
	return out
}

func toStatusResponse(s models.ModuleStatus) StatusResponse {
	return StatusResponse{
		ID:            s.ID,
		Status:        string(s.Status),
		CreatedDate:   s.CreatedDate,
		CreatedByUUID: s.CreatedByUUID,
	}
}

func toStatusPtr(s *models.ModuleStatus) *StatusResponse {
	if s == nil {
		return nil
	}
	out := toStatusResponse(*s)
	return &out
}

func toContextResponse(c models.ModuleObjectContext) ContextResponse {
	return ContextResponse{
		ModuleID:         c.ModuleID,
		Code:             c.Code,
		Action:           string(c.Action),
		Explanation:      c.Explanation,
		Conclusion:       c.Conclusion,
		OriginalAdjustOn: c.OriginalAdjustOn,
		Hidden:           c.Hidden,
		ModifiedDate:     c.ModifiedDate,
		ModifiedByUUID:   c.ModifiedByUUID,
	}
}

func toOverviewResponse(o modules.Overview) OverviewResponse {
	out := OverviewResponse{
		Module:        toModuleResponse(o.Module),
		Status:        toStatusPtr(o.Status),
		StatusHistory: make([]StatusResponse, 0, len(o.StatusHistory)),
		Contexts:      make([]ContextResponse, 0, len(o.Contexts)),
		Drafts:        toDraftResponses(o.Drafts),
	}
	for _, s := range o.StatusHistory {
		out.StatusHistory = append(out.StatusHistory, toStatusResponse(s))
	}
	for _, c := range o.Contexts {
		out.Contexts = append(out.Contexts, toContextResponse(c))
	}
	return out
}

func toChangeResponses(changes []diff.FieldChange) []FieldChangeResponse {
	out := make([]FieldChangeResponse, 0, len(changes))
	for _, c := range changes {
		out = append(out, FieldChangeResponse{Field: c.Name, Old: c.Old, New: c.New})
	}
	return out
}

func toDiffResponse(d modules.ObjectDiff) DiffResponse {
	out := DiffResponse{
		Code:    d.Code,
		Draft:   toDraftResponse(d.Draft),
		Changes: toChangeResponses(d.Changes),
	}
	if d.Base != nil {
		base := toVersionResponse(*d.Base)
		out.Base = &base
	}
	return out
}

func toCompleteResponse(r modules.CompleteResult) CompleteResponse {
	out := CompleteResponse{
		Module:      toModuleResponse(r.Module),
		CompletedAt: r.CompletedAt,
		Commits:     make([]CommitResponse, 0, len(r.Commits)),
	}
	for _, c := range r.Commits {
		out.Commits = append(out.Commits, CommitResponse{
			Code:           c.Context.Code,
			Action:         string(c.Context.Action),
			Version:        toVersionResponse(c.Version),
			TitleRefreshed: c.TitleRefreshed,
		})
	}
	return out
}

func toModuleDraftResponses(ds []snapshot.ModuleDraft) []ModuleDraftResponse {
	out := make([]ModuleDraftResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, ModuleDraftResponse{
			Module: toModuleResponse(d.Module),
			Status: toStatusPtr(d.Status),
			Draft:  toDraftResponse(d.Draft),
		})
	}
	return out
}

func toSideResponse(s models.RelationSide) RelationSideResponse {
	return RelationSideResponse{
		Code:               s.Code,
		Title:              s.Title,
		Explanation:        s.Explanation,
		AcknowledgedDate:   s.AcknowledgedDate,
		AcknowledgedByUUID: s.AcknowledgedByUUID,
	}
}

func toRelationResponse(r models.RelationView) RelationResponse {
	return RelationResponse{
		SideA:           toSideResponse(r.SideA),
		SideB:           toSideResponse(r.SideB),
		OtherCode:       r.OtherCode,
		Version:         r.Version,
		RequestedByCode: r.RequestedByCode,
		Acknowledged:    r.Acknowledged,
		Denied:          r.Denied,
		DeletedAt:       r.DeletedAt,
		CreatedDate:     r.CreatedDate,
		CreatedByUUID:   r.CreatedByUUID,
		ModifiedDate:    r.ModifiedDate,
		ModifiedByUUID:  r.ModifiedByUUID,
	}
}

func toRelationResponses(rs []models.RelationView) []RelationResponse {
	out := make([]RelationResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRelationResponse(r))
	}
	return out
}
