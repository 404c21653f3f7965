// Package api adapts API Gateway HTTP events onto the item store operations.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/arbor/items"
)

// Route keys served by Handle. These match the API Gateway route
// configuration of the deployment.
const (
	RouteCreateItem   = "POST /api/v1/{type}"
	RouteReadItem     = "GET /api/v1/{type}/{id}"
	RouteUpdateItem   = "PUT /api/v1/{type}/{id}"
	RouteDeleteItem   = "DELETE /api/v1/{type}/{id}"
	RouteListChildren = "GET /api/v1/{parentType}/{parentId}/{childType}"
	RouteListOwner    = "GET /api/v1/user/{type}"
)

// Handler maps inbound API Gateway events to store operations.
type Handler struct {
	store  *items.Store
	logger *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s *items.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		logger: logger,
	}
}

// itemResponse wraps single-item results as a one-element collection.
type itemResponse struct {
	Items []*items.Item `json:"items"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Handle dispatches an event by route key. This function is designed to be
// used as an AWS Lambda handler.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	switch req.RouteKey {
	case RouteCreateItem:
		return h.CreateItem(ctx, req), nil
	case RouteReadItem:
		return h.ReadItem(ctx, req), nil
	case RouteUpdateItem:
		return h.UpdateItem(ctx, req), nil
	case RouteDeleteItem:
		return h.DeleteItem(ctx, req), nil
	case RouteListChildren:
		return h.ListChildren(ctx, req), nil
	case RouteListOwner:
		return h.ListOwnerItems(ctx, req), nil
	}
	return response(http.StatusNotFound, errorResponse{Message: "Not Found"}), nil
}

// CreateItem handles POST /api/v1/{type}.
func (h *Handler) CreateItem(ctx context.Context, req events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	var body struct {
		Type       string `json:"type"`
		ID         string `json:"id"`
		Data       any    `json:"data"`
		ParentType string `json:"parentType"`
		ParentID   string `json:"parentId"`
	}
	if req.Body != "" {
		if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
			return response(http.StatusBadRequest, errorResponse{Message: "Malformed request body"})
		}
	}

	typ := body.Type
	if typ == "" {
		typ = req.PathParameters["type"]
	}

	item, err := h.store.Create(ctx, typ, items.CreateOptions{
		ID:         body.ID,
		Data:       body.Data,
		ParentType: body.ParentType,
		ParentID:   body.ParentID,
		Owner:      h.owner(req),
	})
	if err != nil {
		return h.fail(req, err)
	}
	return response(http.StatusCreated, itemResponse{Items: []*items.Item{item}})
}

// ReadItem handles GET /api/v1/{type}/{id}.
func (h *Handler) ReadItem(ctx context.Context, req events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	item, err := h.store.Read(ctx, req.PathParameters["type"], req.PathParameters["id"])
	if err != nil {
		return h.fail(req, err)
	}
	if item == nil {
		return response(http.StatusNotFound, errorResponse{Message: "Item not found"})
	}
	return response(http.StatusOK, itemResponse{Items: []*items.Item{item}})
}

// UpdateItem handles PUT /api/v1/{type}/{id}. The merge query parameter
// selects shallow-merge semantics; a bare ?merge counts as true.
func (h *Handler) UpdateItem(ctx context.Context, req events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	var data any
	if req.Body != "" {
		if err := json.Unmarshal([]byte(req.Body), &data); err != nil {
			return response(http.StatusBadRequest, errorResponse{Message: "Malformed request body"})
		}
	}

	merge := false
	if v, ok := req.QueryStringParameters["merge"]; ok {
		merge = v == "true" || v == ""
	}

	item, err := h.store.Update(ctx, req.PathParameters["type"], req.PathParameters["id"], data, items.UpdateOptions{Merge: merge})
	if err != nil {
		return h.fail(req, err)
	}
	return response(http.StatusOK, itemResponse{Items: []*items.Item{item}})
}

// DeleteItem handles DELETE /api/v1/{type}/{id}.
func (h *Handler) DeleteItem(ctx context.Context, req events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	err := h.store.Delete(ctx, req.PathParameters["type"], req.PathParameters["id"], h.owner(req))
	if err != nil {
		return h.fail(req, err)
	}
	return response(http.StatusOK, itemResponse{Items: []*items.Item{}})
}

// ListChildren handles GET /api/v1/{parentType}/{parentId}/{childType}.
func (h *Handler) ListChildren(ctx context.Context, req events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	list, err := h.store.ListChildren(ctx,
		req.PathParameters["parentType"],
		req.PathParameters["parentId"],
		req.PathParameters["childType"],
		h.page(req),
	)
	if err != nil {
		return h.fail(req, err)
	}
	return response(http.StatusOK, list)
}

// ListOwnerItems handles GET /api/v1/user/{type}, scoped to the
// authenticated user.
func (h *Handler) ListOwnerItems(ctx context.Context, req events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	list, err := h.store.ListByOwner(ctx, h.owner(req), req.PathParameters["type"], h.page(req))
	if err != nil {
		return h.fail(req, err)
	}
	return response(http.StatusOK, list)
}

// owner extracts the requesting user from the JWT authorizer claims.
func (h *Handler) owner(req events.APIGatewayV2HTTPRequest) string {
	auth := req.RequestContext.Authorizer
	if auth == nil || auth.JWT == nil {
		return items.AnonymousOwner
	}
	if sub := auth.JWT.Claims["sub"]; sub != "" {
		return sub
	}
	return items.AnonymousOwner
}

// page reads pagination query parameters.
func (h *Handler) page(req events.APIGatewayV2HTTPRequest) items.Page {
	page := items.Page{Cursor: req.QueryStringParameters["nextCursor"]}
	if raw := req.QueryStringParameters["limit"]; raw != "" {
		if limit, err := strconv.ParseInt(raw, 10, 32); err == nil {
			page.Limit = int32(limit)
		}
	}
	return page
}

// fail maps a store error onto a status code, logging server-side faults.
func (h *Handler) fail(req events.APIGatewayV2HTTPRequest, err error) events.APIGatewayV2HTTPResponse {
	switch {
	case errors.Is(err, items.ErrNotFound):
		return response(http.StatusNotFound, errorResponse{Message: "Item not found"})
	case errors.Is(err, items.ErrAlreadyExists):
		return response(http.StatusConflict, errorResponse{Message: "Item already exists"})
	case errors.Is(err, items.ErrInvalidCursor):
		return response(http.StatusBadRequest, errorResponse{Message: "Invalid cursor"})
	case errors.Is(err, items.ErrUpstreamUnavailable):
		h.logger.Error("storage unavailable",
			"routeKey", req.RouteKey,
			"error", err,
		)
		return response(http.StatusServiceUnavailable, errorResponse{Message: "Service Unavailable"})
	}

	h.logger.Error("request failed",
		"routeKey", req.RouteKey,
		"error", err,
	)
	return response(http.StatusInternalServerError, errorResponse{Message: "Internal Server Error"})
}

func response(status int, body any) events.APIGatewayV2HTTPResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       `{"message":"Internal Server Error"}`,
		}
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Cache-Control": "no-store, max-age=0",
		},
		Body: string(raw),
	}
}
