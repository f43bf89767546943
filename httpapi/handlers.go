package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeagent/command"
	"github.com/rustyeddy/tradeagent/metrics"
	"github.com/rustyeddy/tradeagent/state"
)

type handlers struct {
	repo    *state.Repository
	inbox   command.Inbox
	metrics *metrics.Metrics
	agent   Status
	log     *zap.Logger
}

func (h *handlers) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.agent != nil {
		body["cycle_running"] = h.agent.Running()
	}
	c.JSON(http.StatusOK, body)
}

// position returns the persisted trade state as stored.
func (h *handlers) position(c *gin.Context) {
	st, err := h.repo.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("load trade state: %v", err)})
		return
	}
	c.JSON(http.StatusOK, st)
}

// command validates a {"command": ...} document and drops it in the
// inbox for the next cycle.
func (h *handlers) command(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil || len(strings.TrimSpace(string(raw))) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid command data"})
		return
	}
	cmd, err := command.Parse(raw)
	if err != nil {
		msg := "Invalid command data"
		if errors.Is(err, command.ErrMalformed) {
			msg = err.Error()
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if !cmd.Name.Known() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown command %q", cmd.Name)})
		return
	}

	if err := h.inbox.Write(cmd); err != nil {
		h.log.Error("write command inbox", zap.String("command", string(cmd.Name)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to write command file: %v", err)})
		return
	}
	h.metrics.Command(string(cmd.Name), "queued")
	h.log.Info("command queued", zap.Stringer("command", cmd))
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Command '%s' sent to agent.", cmd.Name)})
}
