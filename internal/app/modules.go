package app

import (
	"github.com/vk/flowgrid/internal/registry"
	"github.com/vk/flowgrid/modules/api"
	"github.com/vk/flowgrid/modules/data"
	"github.com/vk/flowgrid/modules/logic"
	"github.com/vk/flowgrid/modules/message"
	"github.com/vk/flowgrid/modules/notification"
	"github.com/vk/flowgrid/modules/trigger"
	"github.com/vk/flowgrid/modules/wait"
)

// coreModules is the definitive list of all node type modules compiled into
// the flowgrid binary.
var coreModules = []registry.Module{
	&trigger.Module{},
	&message.Module{},
	&wait.Module{},
	&api.Module{},
	&notification.Module{},
	&logic.Module{},
	&data.Module{},
}
