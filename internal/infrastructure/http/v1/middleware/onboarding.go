package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/core/apperror"
)

// Onboarding refuses tenant-scoped traffic until the tenant finishes
// setup. The onboarding endpoints themselves stay reachable so a tenant
// can complete it.
func Onboarding(exemptPrefixes []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		t := TenantFrom(c)
		if t == nil {
			c.Next()
			return
		}

		if !t.Onboarded() {
			for _, prefix := range exemptPrefixes {
				if strings.HasPrefix(c.Request.URL.Path, prefix) {
					c.Next()
					return
				}
			}
			_ = c.Error(apperror.NewOnboardingIncomplete(string(t.OnboardingStatus)))
			c.Abort()
			return
		}

		c.Next()
	}
}
