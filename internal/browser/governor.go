package browser

import (
	"unsubscribe-agent/internal/ports"
	"unsubscribe-agent/pkg/logg"

	"go.uber.org/zap"
)

const governorName = "ResourceGovernor"

// BlockedResourceTypes are aborted before they reach the network.
var BlockedResourceTypes = []string{"image", "stylesheet", "font", "media"}

// Governor aborts non-essential asset requests for a page.
type Governor struct {
	logger  *zap.Logger
	blocked map[string]struct{}
}

func NewGovernor(logger *zap.Logger) *Governor {
	blocked := make(map[string]struct{}, len(BlockedResourceTypes))
	for _, t := range BlockedResourceTypes {
		blocked[t] = struct{}{}
	}

	return &Governor{
		logger:  logger.With(zap.String(logg.Layer, governorName)),
		blocked: blocked,
	}
}

// Install routes every request of page through Handle. A failed install is
// logged and navigation proceeds unthrottled.
func (g *Governor) Install(page ports.Page) {
	if err := page.Route("**/*", g.Handle); err != nil {
		g.logger.Warn("Failed to install request interception", zap.Error(err))
	}
}

func (g *Governor) Handle(route ports.Route) {
	if g.Blocks(route.ResourceType()) {
		if err := route.Abort(); err != nil {
			g.logger.Debug("Abort failed", zap.String(logg.URL, route.URL()), zap.Error(err))
		}

		return
	}

	if err := route.Continue(); err != nil {
		g.logger.Debug("Continue failed", zap.String(logg.URL, route.URL()), zap.Error(err))
	}
}

func (g *Governor) Blocks(resourceType string) bool {
	_, ok := g.blocked[resourceType]

	return ok
}
