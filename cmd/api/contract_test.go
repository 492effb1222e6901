package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fashion-supplychain/progress-service/internal/application"
	"github.com/fashion-supplychain/progress-service/internal/domain"
	"github.com/fashion-supplychain/progress-service/pkg/api"
	"github.com/fashion-supplychain/progress-service/pkg/contracts/openapi"
	"github.com/fashion-supplychain/progress-service/pkg/errors"
)

var pathParam = regexp.MustCompile(`:[A-Za-z]+`)

func TestRoutesAreDocumented(t *testing.T) {
	v, err := openapi.NewValidator()
	require.NoError(t, err)

	routes := newTestRouter(&stubService{}, 1).Routes()
	documented := 0
	for _, route := range routes {
		if !strings.HasPrefix(route.Path, "/api/v1") {
			continue
		}
		path := pathParam.ReplaceAllString(route.Path, "X-1")
		_, err := v.OperationID(httptest.NewRequest(route.Method, path, nil))
		assert.NoError(t, err, "%s %s", route.Method, route.Path)
		documented++
	}
	assert.Equal(t, 8, documented)
}

func TestHandlerResponsesMatchContract(t *testing.T) {
	v, err := openapi.NewValidator()
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	defects := 2
	scan := application.ScanEventDTO{
		ID:             "S-1",
		RequestID:      "req-1",
		UnitID:         "PO-1",
		OrderID:        "PO-1",
		BundleID:       "B-1",
		StageKey:       "quality",
		StageName:      "质检",
		Category:       string(domain.CategoryQuality),
		SubCode:        "confirm",
		Outcome:        "success",
		Quantity:       30,
		DefectQuantity: &defects,
		ScannedAt:      now,
		ConfirmedAt:    &now,
		OperatorID:     "W-1",
		CanUndo:        true,
	}

	svc := &stubService{
		ResolveStageFn: func(_ context.Context, q application.ResolveStageQuery) (*application.ResolutionDTO, error) {
			switch q.UnitID {
			case "PO-1":
				return &application.ResolutionDTO{
					UnitID:       "PO-1",
					StyleNo:      "ST-1",
					Determined:   true,
					StageKey:     "ironing",
					StageName:    "整烫",
					ScanCategory: string(domain.CategoryProduction),
					Stages: []domain.StageProgress{
						{StageKey: "sewing", StageName: "车缝", Category: domain.CategoryProduction, Satisfied: true, SuccessCount: 1},
						{StageKey: "ironing", StageName: "整烫", Category: domain.CategoryProduction},
					},
					ResolvedAt: now,
				}, nil
			case "PO-2":
				return &application.ResolutionDTO{UnitID: "PO-2"}, nil
			}
			return nil, errors.ErrNotFoundWithID("production unit", q.UnitID)
		},
		ListScanHistoryFn: func(_ context.Context, q application.ScanHistoryQuery) (*api.PageResponse[application.ScanEventDTO], error) {
			page := api.NewPageResponse([]application.ScanEventDTO{scan}, api.PageRequest{Page: q.Page, PageSize: q.PageSize}, 1)
			return &page, nil
		},
		RecordScanFn: func(_ context.Context, cmd application.RecordScanCommand) (*application.RecordScanResultDTO, error) {
			if cmd.RequestID == "dup" {
				return &application.RecordScanResultDTO{Scan: scan, Duplicate: true}, nil
			}
			return &application.RecordScanResultDTO{Scan: scan}, nil
		},
		GetUndoEligibilityFn: func(_ context.Context, q application.UndoEligibilityQuery) (*application.UndoEligibilityDTO, error) {
			return &application.UndoEligibilityDTO{
				ScanID:  q.ScanID,
				Reason:  string(domain.UndoScanInFuture),
				Message: domain.UndoScanInFuture.Message(),
			}, nil
		},
		UndoScanFn: func(_ context.Context, cmd application.UndoScanCommand) (*application.UndoResultDTO, error) {
			if cmd.ScanID == "S-9" {
				return nil, errors.ErrUndoRejected(string(domain.UndoWindowExpired), domain.UndoWindowExpired.Message())
			}
			return &application.UndoResultDTO{ScanID: cmd.ScanID, UndoneAt: now, UndoneBy: cmd.Actor.ID, RolledBackRecords: 1}, nil
		},
		ClaimTaskFn: func(context.Context, application.ClaimTaskCommand) (*application.ClaimResultDTO, error) {
			return &application.ClaimResultDTO{TaskID: "T-1", Action: string(domain.ClaimActionClaim), Reason: "claimable", Claimed: true}, nil
		},
		GetCatalogFn: func(_ context.Context, q application.GetCatalogQuery) (*application.CatalogDTO, error) {
			if q.StyleNo != "ST-1" {
				return nil, errors.ErrMissingCatalog(q.StyleNo)
			}
			return &application.CatalogDTO{StyleNo: "ST-1", Stages: []application.StageDTO{
				{StageKey: "cutting", StageName: "裁剪", SortOrder: 1, Category: string(domain.CategoryCutting), Skippable: true, Aliases: []string{"裁床"}},
				{StageKey: "sewing", StageName: "车缝", SortOrder: 2, UnitPrice: "2.50", Category: string(domain.CategoryProduction)},
			}}, nil
		},
		SaveCatalogFn: func(_ context.Context, cmd application.SaveCatalogCommand) (*application.CatalogDTO, error) {
			return &application.CatalogDTO{StyleNo: cmd.StyleNo, Stages: []application.StageDTO{
				{StageKey: "cutting", StageName: "裁剪", SortOrder: 1, Category: string(domain.CategoryCutting)},
			}}, nil
		},
	}
	router := newTestRouter(svc, 0)
	operator := map[string]string{HeaderOperatorID: "W-1"}

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		headers    map[string]string
		wantStatus int
	}{
		{"resolved stage", http.MethodGet, "/api/v1/units/PO-1/stage", "", nil, http.StatusOK},
		{"undetermined stage", http.MethodGet, "/api/v1/units/PO-2/stage", "", nil, http.StatusServiceUnavailable},
		{"unknown unit", http.MethodGet, "/api/v1/units/PO-404/stage", "", nil, http.StatusNotFound},
		{"scan history", http.MethodGet, "/api/v1/units/PO-1/scans?page=1&pageSize=10", "", nil, http.StatusOK},
		{"scan recorded", http.MethodPost, "/api/v1/scans", `{"requestId":"req-1","unitId":"PO-1","stageKey":"quality","outcome":"success","quantity":30}`, operator, http.StatusCreated},
		{"invalid scan", http.MethodPost, "/api/v1/scans", `{"requestId":"req-3","unitId":"PO-1","outcome":"maybe"}`, operator, http.StatusBadRequest},
		{"undo eligibility", http.MethodGet, "/api/v1/scans/S-1/undo-eligibility", "", operator, http.StatusOK},
		{"scan undone", http.MethodPost, "/api/v1/scans/S-1/undo", "", operator, http.StatusOK},
		{"undo rejected", http.MethodPost, "/api/v1/scans/S-9/undo", "", operator, http.StatusConflict},
		{"undo without operator", http.MethodPost, "/api/v1/scans/S-1/undo", "", nil, http.StatusBadRequest},
		{"task claimed", http.MethodPost, "/api/v1/tasks/claim", `{"orderId":"PO-1","kind":"cutting"}`, operator, http.StatusOK},
		{"catalog", http.MethodGet, "/api/v1/styles/ST-1/stages", "", nil, http.StatusOK},
		{"missing catalog", http.MethodGet, "/api/v1/styles/ST-9/stages", "", nil, http.StatusUnprocessableEntity},
		{"catalog saved", http.MethodPut, "/api/v1/styles/ST-1/stages", `{"stages":[{"stageName":"裁剪","sortOrder":1}]}`, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, tt.method, tt.path, tt.body, tt.headers)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			req := httptest.NewRequest(tt.method, tt.path, nil)
			assert.NoError(t, v.ValidateResponse(req, w.Code, w.Header(), w.Body.Bytes()))
		})
	}

	t.Run("scan rate limited", func(t *testing.T) {
		limited := newTestRouter(svc, 0.5)
		body := `{"requestId":"dup","unitId":"PO-1","stageKey":"quality","outcome":"success"}`

		first := do(limited, http.MethodPost, "/api/v1/scans", body, operator)
		second := do(limited, http.MethodPost, "/api/v1/scans", body, operator)

		require.Equal(t, http.StatusOK, first.Code)
		require.Equal(t, http.StatusTooManyRequests, second.Code)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", nil)
		assert.NoError(t, v.ValidateResponse(req, first.Code, first.Header(), first.Body.Bytes()))
		assert.NoError(t, v.ValidateResponse(req, second.Code, second.Header(), second.Body.Bytes()))
	})
}
