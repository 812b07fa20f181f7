package handlers

import (
	"strconv"
	"time"

	"github.com/gametrade/backend/internal/http/dto"
	"github.com/gametrade/backend/internal/middleware"
	"github.com/gametrade/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ListingHandler struct {
	listingService *services.ListingService
	log            *zap.Logger
}

func NewListingHandler(listingService *services.ListingService, log *zap.Logger) *ListingHandler {
	return &ListingHandler{listingService: listingService, log: log}
}

func (h *ListingHandler) CreateListing(c *fiber.Ctx) error {
	var req dto.CreateListingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	in := services.CreateListingInput{
		Title:        req.Title,
		ListingType:  req.ListingType,
		Price:        req.Price,
		StartingBid:  req.StartingBid,
		BidIncrement: req.BidIncrement,
	}
	if req.AuctionEndsAt != nil {
		t, err := time.Parse(time.RFC3339, *req.AuctionEndsAt)
		if err != nil {
			return badRequest(c, "auction_ends_at must be RFC3339")
		}
		in.AuctionEndsAt = &t
	}

	listing, err := h.listingService.CreateListing(c.Context(), in, caller)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: listing})
}

func (h *ListingHandler) GetListing(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid listing id")
	}

	listing, err := h.listingService.GetListing(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: listing})
}

func (h *ListingHandler) PlaceBid(c *fiber.Ctx) error {
	listingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid listing id")
	}

	var req dto.PlaceBidRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	bid, err := h.listingService.PlaceBid(c.Context(), listingID, caller, req.Amount)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: bid})
}

func (h *ListingHandler) ListBids(c *fiber.Ctx) error {
	listingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid listing id")
	}

	limit, offset := 20, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	bids, err := h.listingService.ListBids(c.Context(), listingID, limit, offset)
	if err != nil {
		h.log.Error("list bids failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: bids})
}

func (h *ListingHandler) FinishAuction(c *fiber.Ctx) error {
	listingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid listing id")
	}

	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	txn, err := h.listingService.FinishAuction(c.Context(), listingID, caller)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: txn})
}
