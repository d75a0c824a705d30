package webapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/materials-commons/mcsync/pkg/storagepath"
)

// AccountLister names the accounts that are still configured.
type AccountLister interface {
	Accounts() []string
}

type CleanupController struct {
	resolver *storagepath.Resolver
	accounts AccountLister
}

func NewCleanupController(resolver *storagepath.Resolver, accounts AccountLister) *CleanupController {
	return &CleanupController{resolver: resolver, accounts: accounts}
}

// DeleteUnusedUserDirs removes the storage directories of accounts that are
// no longer configured.
func (c *CleanupController) DeleteUnusedUserDirs(ctx echo.Context) error {
	removed := c.resolver.DeleteUnusedUserDirs(c.accounts.Accounts())
	if removed == nil {
		removed = []string{}
	}

	return ctx.JSON(http.StatusOK, map[string][]string{"removed": removed})
}
