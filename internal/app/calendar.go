package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
)

// GET /api/calendar/auth
// Starts the OAuth2 flow for the host's Google Calendar account.
func (a *App) GoogleAuthHandler(c *gin.Context) {
	if a.OAuth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "google calendar not configured"})
		return
	}
	state := fmt.Sprintf("michael_%d", time.Now().Unix())
	url := a.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline)
	c.JSON(http.StatusOK, gin.H{"auth_url": url, "state": state})
}

// GET /oauth2callback
// Exchanges the authorization code and hands the token back to the operator,
// who stores it as GOOGLE_TOKEN_JSON. Single host, single account: there is
// no per-user token table.
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	if a.OAuth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "google calendar not configured"})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
		return
	}

	token, err := a.OAuth.Exchange(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to exchange code for token"})
		return
	}

	tokenJSON, err := json.Marshal(token)
	if err != nil {
		a.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "authorization successful; set GOOGLE_TOKEN_JSON to the token below and restart",
		"token":   string(tokenJSON),
	})
}
