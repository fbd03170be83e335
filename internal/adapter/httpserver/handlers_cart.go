package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/gigmarket/internal/domain"
	apperrors "github.com/pscheid92/gigmarket/internal/platform/errors"
)

func (s *Server) registerCartRoutes(csrf, limiter echo.MiddlewareFunc) {
	g := s.echo.Group("/api/carts/:userId", limiter, s.requireAuth, csrf)
	g.GET("", s.handleListCart)
	g.POST("/items", s.handleAddCartItem)
	g.PATCH("/items/:itemId", s.handleUpdateCartItem)
	g.DELETE("/items/:itemId", s.handleRemoveCartItem)
	g.DELETE("/items", s.handleClearCart)
}

type addCartItemRequest struct {
	ServiceID      int64  `json:"serviceId"`
	Title          string `json:"title"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// cartScope resolves the acting user and the cart owner of a cart route.
func cartScope(c echo.Context) (actorID, ownerID int64, err error) {
	if actorID, err = sessionUserID(c); err != nil {
		return 0, 0, err
	}
	if ownerID, err = int64Param(c, "userId"); err != nil {
		return 0, 0, err
	}
	return actorID, ownerID, nil
}

func (s *Server) handleListCart(c echo.Context) error {
	actorID, ownerID, err := cartScope(c)
	if err != nil {
		return err
	}
	items, err := s.app.ListCart(c.Request().Context(), actorID, ownerID)
	if err != nil {
		return mapAppError(err, "list cart").WithField("cart_user_id", ownerID)
	}
	return writeJSON(c, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleAddCartItem(c echo.Context) error {
	actorID, ownerID, err := cartScope(c)
	if err != nil {
		return err
	}
	var req addCartItemRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	item, err := s.app.AddCartItem(c.Request().Context(), actorID, ownerID, domain.NewCartItem{
		ServiceID:      req.ServiceID,
		Title:          req.Title,
		Quantity:       req.Quantity,
		UnitPriceCents: req.UnitPriceCents,
	})
	if err != nil {
		return mapAppError(err, "add cart item").WithField("cart_user_id", ownerID)
	}
	return writeJSON(c, http.StatusCreated, item)
}

func (s *Server) handleUpdateCartItem(c echo.Context) error {
	actorID, ownerID, err := cartScope(c)
	if err != nil {
		return err
	}
	itemID, err := int64Param(c, "itemId")
	if err != nil {
		return err
	}
	var req updateCartItemRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	item, err := s.app.UpdateCartItem(c.Request().Context(), actorID, ownerID, itemID, req.Quantity)
	if err != nil {
		return mapAppError(err, "update cart item").WithField("cart_user_id", ownerID).WithField("item_id", itemID)
	}
	return writeJSON(c, http.StatusOK, item)
}

func (s *Server) handleRemoveCartItem(c echo.Context) error {
	actorID, ownerID, err := cartScope(c)
	if err != nil {
		return err
	}
	itemID, err := int64Param(c, "itemId")
	if err != nil {
		return err
	}

	if err := s.app.RemoveCartItem(c.Request().Context(), actorID, ownerID, itemID); err != nil {
		return mapAppError(err, "remove cart item").WithField("cart_user_id", ownerID).WithField("item_id", itemID)
	}
	return noContent(c)
}

func (s *Server) handleClearCart(c echo.Context) error {
	actorID, ownerID, err := cartScope(c)
	if err != nil {
		return err
	}

	removed, err := s.app.ClearCart(c.Request().Context(), actorID, ownerID)
	if err != nil {
		return mapAppError(err, "clear cart").WithField("cart_user_id", ownerID)
	}
	return writeJSON(c, http.StatusOK, map[string]int64{"removedCount": removed})
}
