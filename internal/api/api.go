package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/georacer/internal/catalog"
	"github.com/kiliankoe/georacer/internal/game"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// API is the HTTP surface next to the sockets: lobby creation and lookup plus the object catalog.
type API struct {
	manager   *game.Manager
	catalog   catalog.Catalog
	publicURL string
}

func New(manager *game.Manager, cat catalog.Catalog, publicURL string) *API {
	return &API{manager: manager, catalog: cat, publicURL: strings.TrimRight(publicURL, "/")}
}

// Mount registers the routes. With accounts set, object uploads and ending lobbies need basic auth.
func (a *API) Mount(r gin.IRouter, accounts gin.Accounts) {
	admin := []gin.HandlerFunc{}
	if len(accounts) > 0 {
		admin = append(admin, gin.BasicAuth(accounts))
	}

	r.GET("/health", a.health)

	r.POST("/api/lobbies", a.createLobby)
	r.GET("/api/lobbies/:id", a.getLobby)
	r.GET("/api/lobbies/:id/qr", a.lobbyQR)
	r.DELETE("/api/lobbies/:id", append(admin, a.endLobby)...)

	r.POST("/api/objects", append(admin, a.addObject)...)
	r.GET("/api/objects/count", a.countObjects)
}

func (a *API) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC(), "lobbies": a.manager.Len()})
}

func (a *API) createLobby(c *gin.Context) {
	var settings game.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_settings"})
		return
	}
	id, err := a.manager.Create(settings)
	if errors.Is(err, game.ErrInvalidSettings) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_settings"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (a *API) getLobby(c *gin.Context) {
	lobby, err := a.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
		return
	}
	c.JSON(http.StatusOK, lobby.Snapshot())
}

func (a *API) endLobby(c *gin.Context) {
	id := c.Param("id")
	if err := a.manager.End(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
		return
	}
	log.Info().Str("lobby_id", id).Msg("lobby ended over http")
	c.Status(http.StatusNoContent)
}

// JoinURL is what the lobby QR code points at.
func (a *API) JoinURL(id string) string {
	return a.publicURL + "/?lobby=" + url.QueryEscape(id)
}

func (a *API) lobbyQR(c *gin.Context) {
	id := c.Param("id")
	if _, err := a.manager.Get(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
		return
	}
	png, err := qrcode.Encode(a.JoinURL(id), qrcode.Medium, qrSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr_failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

type objectRequest struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

func (a *API) addObject(c *gin.Context) {
	var req objectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_object"})
		return
	}
	obj, err := a.catalog.Add(c.Request.Context(), req.Name, req.Image)
	if errors.Is(err, catalog.ErrInvalidObject) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_object"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("name", req.Name).Msg("failed to store game object")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store_failed"})
		return
	}
	log.Info().Str("object_id", obj.ID).Str("name", obj.Name).Msg("game object added")
	c.JSON(http.StatusCreated, gin.H{"id": obj.ID, "name": obj.Name})
}

func (a *API) countObjects(c *gin.Context) {
	n, err := a.catalog.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}
