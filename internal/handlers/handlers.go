package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"frameworks/crowsnest/internal/egress"
	"frameworks/crowsnest/internal/insight"
	"frameworks/crowsnest/internal/scanner"
	"frameworks/crowsnest/internal/triage"
	"frameworks/crowsnest/pkg/logging"
	"frameworks/crowsnest/pkg/version"
)

var (
	logger     logging.Logger
	scan       *scanner.Scanner
	rotator    *egress.Rotator
	batcher    *triage.Batcher
	aggregator *insight.Aggregator
)

// Init wires the handlers to the running pipeline components
func Init(s *scanner.Scanner, r *egress.Rotator, b *triage.Batcher, a *insight.Aggregator, log logging.Logger) {
	scan = s
	rotator = r
	batcher = b
	aggregator = a
	logger = log
}

// StatusResponse is the operator view of pipeline state.
type StatusResponse struct {
	Service    string                           `json:"service"`
	Version    version.Info                     `json:"version"`
	Scan       scanner.State                    `json:"scan"`
	Identities egress.RotatorStats              `json:"identities"`
	Tiers      map[triage.Tier]triage.TierStats `json:"tiers"`
	Insights   map[string]int                   `json:"insights"`
}

// GetStatus reports scan pacing, identity pool health, tier queues, and
// pending insight counts.
func GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Service:    "crowsnest",
		Version:    version.GetInfo(),
		Scan:       scan.Stats(),
		Identities: rotator.Stats(),
		Tiers:      batcher.Stats(),
		Insights:   aggregator.Stats(),
	})
}
