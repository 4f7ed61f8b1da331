package realitysync

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/smartsetter/ssot_backend/config"
	"github.com/smartsetter/ssot_backend/models"
	"github.com/smartsetter/ssot_backend/utils"
)

func bindingError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

// TriggerSyncHandler dispatches a sync run of the requested kind over
// pub/sub and returns immediately.
func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		kind := c.Param("kind")
		if !validRunKind(kind) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown sync kind"})
			return
		}
		if err := PublishSyncRun(c.Request.Context(), kind); err != nil {
			config.LogError(config.GetLogger(), "realitysync", "TriggerSyncHandler", "publish",
				map[string]any{"kind": kind}, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to dispatch sync run"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "dispatched", "kind": kind})
	}
}

type agentSearchRequest struct {
	Filters []models.PortalFilter `json:"filters" binding:"required,dive"`
	Limit   int                   `json:"limit"`
}

// SearchAgentsHandler runs a portal filter expression against the agent
// store. A mls_id clause routes the search to that MLS's partition view.
func SearchAgentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req agentSearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindingError(c, err)
			return
		}

		agents, err := models.SearchAgents(c.Request.Context(), req.Filters, req.Limit)
		if err != nil {
			if err == utils.ErrorRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown mls"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"agents": agents, "count": len(agents)})
	}
}

// GetAgentHandler returns one agent with its office and MLS preloaded.
func GetAgentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var agent models.Agent
		err := config.GetDB().WithContext(c.Request.Context()).
			Preload("Office").
			Preload("MLS").
			Where("id = ?", c.Param("id")).
			First(&agent).Error
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		c.JSON(http.StatusOK, agent)
	}
}

type createWebhookRequest struct {
	ExternalID   string `json:"external_id" binding:"required"`
	BaseID       string `json:"base_id"`
	MacSecretRef string `json:"mac_secret_ref"`
}

func CreateWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createWebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindingError(c, err)
			return
		}

		webhook := models.ChangeWebhook{
			ExternalID:   req.ExternalID,
			BaseID:       req.BaseID,
			MacSecretRef: req.MacSecretRef,
		}
		if err := models.CreateChangeWebhook(c.Request.Context(), &webhook); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "webhook already registered"})
			return
		}
		c.JSON(http.StatusCreated, webhook)
	}
}

func ListWebhooksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		webhooks, err := models.ListChangeWebhooks(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"webhooks": webhooks})
	}
}

func DeleteWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := models.DeleteChangeWebhook(c.Request.Context(), c.Param("externalId")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// NotifyWebhookHandler receives an upstream change notification. New
// notifications trigger a pull-updates run; replays are acknowledged without
// side effects.
func NotifyWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var notification models.ChangeNotification
		if err := c.ShouldBindJSON(&notification); err != nil {
			bindingError(c, err)
			return
		}

		isNew, err := models.ProcessChangeNotification(c.Request.Context(), notification)
		if err != nil {
			if err == utils.ErrorRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown webhook"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if isNew {
			if err := PublishSyncRun(c.Request.Context(), RunPullUpdatesKind); err != nil {
				config.LogError(config.GetLogger(), "realitysync", "NotifyWebhookHandler",
					"dispatch pull", nil, err)
			}
		}
		c.JSON(http.StatusOK, gin.H{"processed": isNew})
	}
}

// RegisterRoutes wires the sync and portal endpoints onto the router group.
func RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/sync/:kind", TriggerSyncHandler())
	api.POST("/sync/pubsub/push", PubSubPushHandler())

	api.POST("/agents/search", SearchAgentsHandler())
	api.GET("/agents/:id", GetAgentHandler())

	api.POST("/webhooks", CreateWebhookHandler())
	api.GET("/webhooks", ListWebhooksHandler())
	api.DELETE("/webhooks/:externalId", DeleteWebhookHandler())
	api.POST("/webhooks/notify", NotifyWebhookHandler())
}
