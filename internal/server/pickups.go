package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	pickupdomain "github.com/smallbiznis/wasteloop/internal/pickup/domain"
	"github.com/smallbiznis/wasteloop/pkg/db/pagination"
)

type listPickupsQuery struct {
	pagination.Pagination
	Status string `form:"status"`
}

type updatePickupRequest struct {
	Status string `json:"status"`
}

func (s *Server) CreatePickup(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	req, err := s.pickups.Create(c.Request.Context(), actor.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": req})
}

func (s *Server) ListPickups(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query listPickupsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.pickups.ListForUser(c.Request.Context(), actor.UserID, pickupdomain.ListRequest{
		Status:     strings.TrimSpace(query.Status),
		Pagination: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Data, "pageInfo": resp.PageInfo})
}

func (s *Server) PickupSlip(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parsePathID(c.Param("id"), pickupdomain.ErrInvalidID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	slip, err := s.pickups.Slip(c.Request.Context(), actor, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.DataFromReader(http.StatusOK, -1, "application/pdf", slip, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="pickup-%s.pdf"`, id.String()),
	})
}

func (s *Server) AdminListPickups(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query listPickupsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.pickups.ListAll(c.Request.Context(), actor, pickupdomain.ListRequest{
		Status:     strings.TrimSpace(query.Status),
		Pagination: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Data, "pageInfo": resp.PageInfo})
}

func (s *Server) AdminUpdatePickup(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parsePathID(c.Param("id"), pickupdomain.ErrInvalidID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updatePickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	updated, err := s.pickups.UpdateStatus(c.Request.Context(), actor, id, req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": updated})
}
