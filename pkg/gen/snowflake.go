package gen

import (
	"openpaws/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("gen",
	fx.Provide(NewNode),
)

// NewNode returns the snowflake node used for every surrogate id. NODE_ID
// must be unique per running instance.
func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	id := int64(1)
	if cfg != nil && cfg.NodeID > 0 {
		id = cfg.NodeID
	}
	return snowflake.NewNode(id)
}
