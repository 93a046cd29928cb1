package sessionmodule

import (
	"github.com/zynkhq/zynk/internal/modules/modulemanager"
)

// Auto-register the module when imported
func init() {
	Register()
}

// Register registers the session module with the module system
func Register() {
	modulemanager.Register(&Module{})
}
